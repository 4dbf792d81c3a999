package query

import "testing"

func TestMatchesWhereEqualsComparesBooleanValue(t *testing.T) {
	doc := []byte(`{"flag": true}`)

	if !MatchesWhere(Where{"flag": true}, doc) {
		t.Fatal("expected flag=true to match {flag: true}")
	}
	if MatchesWhere(Where{"flag": false}, doc) {
		t.Fatal("expected flag=true to NOT match {flag: false}")
	}
}

func TestMatchesWhereEqualsOperatorComparesBooleanValue(t *testing.T) {
	doc := []byte(`{"flag": false}`)

	if !MatchesWhere(Where{"flag": map[string]interface{}{OpEquals: false}}, doc) {
		t.Fatal("expected flag=false to match {$equals: false}")
	}
	if MatchesWhere(Where{"flag": map[string]interface{}{OpEquals: true}}, doc) {
		t.Fatal("expected flag=false to NOT match {$equals: true}")
	}
}

func TestMatchesWhereEqualsStringAndNumberUnaffected(t *testing.T) {
	doc := []byte(`{"status": "open", "count": 3}`)

	if !MatchesWhere(Where{"status": "open"}, doc) {
		t.Fatal("expected status=open to match")
	}
	if MatchesWhere(Where{"status": "closed"}, doc) {
		t.Fatal("expected status=open to NOT match closed")
	}
	if !MatchesWhere(Where{"count": 3}, doc) {
		t.Fatal("expected count=3 to match")
	}
}
