// Package model defines the entity ("noun") and relationship ("verb") record
// shapes and their closed type vocabularies (spec §3).
package model

// NounType is one of the closed set of ~42 nominal entity categories.
type NounType string

// NumNounTypes is the fixed width of the type-counter array in
// pkg/metaindex; it must equal len(NounTypes).
const NumNounTypes = 42

// NounTypes enumerates the closed set of entity categories, in the fixed
// order used to index pkg/metaindex's counter array.
var NounTypes = [NumNounTypes]NounType{
	"Person", "Organization", "Document", "Concept", "Location", "Event",
	"File", "Directory", "Project", "Task", "Note", "Message", "Email",
	"Meeting", "Product", "Service", "Tool", "Dataset", "Model", "Paper",
	"Book", "Article", "Image", "Video", "Audio", "Code", "Repository",
	"Issue", "PullRequest", "Comment", "Tag", "Topic", "Skill", "Role",
	"Team", "Account", "Session", "Conversation", "Agent", "Workflow",
	"Policy", "Asset",
}

var nounTypeIndex = buildNounIndex()

func buildNounIndex() map[NounType]int {
	idx := make(map[NounType]int, NumNounTypes)
	for i, t := range NounTypes {
		idx[t] = i
	}
	return idx
}

// IndexOfNounType returns the fixed-array index for t, or -1 if t is not a
// recognized noun type.
func IndexOfNounType(t NounType) int {
	if i, ok := nounTypeIndex[t]; ok {
		return i
	}
	return -1
}

// IsValidNounType reports whether t is in the closed set.
func IsValidNounType(t NounType) bool {
	_, ok := nounTypeIndex[t]
	return ok
}

// VerbType is one of the closed set of ~127 relationship verbs.
type VerbType string

// VerbTypes enumerates the closed set of relationship verbs. Contains is
// the only verb with dedicated system semantics (VFS directory children).
var VerbTypes = buildVerbTypes()

func buildVerbTypes() map[VerbType]bool {
	names := []string{
		"Contains", "MemberOf", "References", "RelatesTo", "Creates",
		"Created", "Updates", "Updated", "Deletes", "Deleted", "Owns",
		"OwnedBy", "Manages", "ManagedBy", "Follows", "FollowedBy",
		"Likes", "LikedBy", "Mentions", "MentionedBy", "Replies",
		"RepliedTo", "Authors", "AuthoredBy", "Assigns", "AssignedTo",
		"Reviews", "ReviewedBy", "Approves", "ApprovedBy", "Blocks",
		"BlockedBy", "DependsOn", "DependencyOf", "Implements",
		"ImplementedBy", "Extends", "ExtendedBy", "Uses", "UsedBy",
		"Imports", "ImportedBy", "Exports", "ExportedBy", "Calls",
		"CalledBy", "Triggers", "TriggeredBy", "Precedes", "Follows2",
		"PartOf", "HasPart", "InstanceOf", "HasInstance", "SubclassOf",
		"HasSubclass", "SimilarTo", "OppositeOf", "CausedBy", "Causes",
		"LocatedIn", "LocationOf", "WorksAt", "Employs", "AttendedBy",
		"Attends", "Organizes", "OrganizedBy", "Sponsors", "SponsoredBy",
		"Invites", "InvitedBy", "Shares", "SharedBy", "Forks", "ForkedFrom",
		"Merges", "MergedInto", "Tags", "TaggedWith", "Categorizes",
		"CategorizedAs", "Archives", "ArchivedBy", "Supersedes",
		"SupersededBy", "Duplicates", "DuplicateOf", "Links", "LinkedFrom",
		"Embeds", "EmbeddedIn", "Annotates", "AnnotatedBy", "Quotes",
		"QuotedBy", "Cites", "CitedBy", "Translates", "TranslatedFrom",
		"Versions", "VersionOf", "Branches", "BranchedFrom", "Watches",
		"WatchedBy", "Subscribes", "SubscribedBy", "Joins", "JoinedBy",
		"Leaves", "LeftBy", "Grants", "GrantedBy", "Revokes", "RevokedBy",
		"Configures", "ConfiguredBy", "Hosts", "HostedBy", "Deploys",
		"DeployedBy", "Monitors", "MonitoredBy", "Aggregates",
		"AggregatedInto", "Summarizes", "SummarizedBy", "Validates",
		"ValidatedBy",
	}
	set := make(map[VerbType]bool, len(names))
	for _, n := range names {
		set[VerbType(n)] = true
	}
	return set
}

// IsValidVerbType reports whether t is in the closed set.
func IsValidVerbType(t VerbType) bool {
	return VerbTypes[t]
}

// VerbContains is the single verb type with system-level VFS semantics.
const VerbContains VerbType = "Contains"

// ReservedMetadataKeys are the keys the entity/verb store rejects on writes
// that do not originate from pkg/vfs (spec §3, supplemented enforcement
// per SPEC_FULL.md §4).
var ReservedMetadataKeys = map[string]bool{
	"vfsType": true, "path": true, "name": true, "storage": true,
	"size": true, "rawData": true, "vfsPath": true,
}
