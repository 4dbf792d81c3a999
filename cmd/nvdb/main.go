// Command nvdb is a CLI front-end over the nvdb library, grounded on the
// teacher's cmd/sqvect cobra layout and generalized from a single-table
// embedding store to the noun/verb entity-graph surface.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nounverb/nvdb"
	"github.com/nounverb/nvdb/pkg/model"
	"github.com/nounverb/nvdb/pkg/query"
	"github.com/nounverb/nvdb/pkg/store"
	"github.com/nounverb/nvdb/pkg/value"
)

var (
	dbPath string
	db     *nvdb.DB
)

var rootCmd = &cobra.Command{
	Use:   "nvdb",
	Short: "CLI for the nvdb embeddable noun/verb entity-graph database",
}

func openDB(cmd *cobra.Command, _ []string) error {
	ctx := context.Background()
	opened, err := nvdb.Open(ctx, nvdb.WithPath(dbPath))
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	db = opened
	return nil
}

func closeDB(cmd *cobra.Command, _ []string) error {
	if db == nil {
		return nil
	}
	return db.Close(context.Background())
}

func parseVector(s string) ([]float32, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	vec := make([]float32, 0, len(parts))
	for _, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return nil, fmt.Errorf("invalid vector component %q: %w", p, err)
		}
		vec = append(vec, float32(f))
	}
	return vec, nil
}

func parseMetadata(s string) (map[string]value.Value, error) {
	if s == "" {
		return nil, nil
	}
	var raw map[string]interface{}
	if err := json.Unmarshal([]byte(s), &raw); err != nil {
		return nil, fmt.Errorf("invalid metadata JSON: %w", err)
	}
	md := make(map[string]value.Value, len(raw))
	for k, v := range raw {
		md[k] = value.FromRaw(v)
	}
	return md, nil
}

var addCmd = &cobra.Command{
	Use:   "add <id>",
	Short: "Add or replace an entity",
	Args:  cobra.ExactArgs(1),
	PreRunE: openDB, PostRunE: closeDB,
	RunE: func(cmd *cobra.Command, args []string) error {
		nounType, _ := cmd.Flags().GetString("type")
		vectorStr, _ := cmd.Flags().GetString("vector")
		metadataStr, _ := cmd.Flags().GetString("metadata")
		dataStr, _ := cmd.Flags().GetString("data")
		service, _ := cmd.Flags().GetString("service")

		vector, err := parseVector(vectorStr)
		if err != nil {
			return err
		}
		md, err := parseMetadata(metadataStr)
		if err != nil {
			return err
		}

		var data interface{} = dataStr
		if dataStr != "" {
			var decoded interface{}
			if json.Unmarshal([]byte(dataStr), &decoded) == nil {
				data = decoded
			}
		}

		id, err := db.Add(cmd.Context(), store.AddParams{
			ID:       args[0],
			Data:     data,
			Type:     model.NounType(nounType),
			Metadata: md,
			Vector:   vector,
			Service:  service,
		})
		if err != nil {
			return fmt.Errorf("add: %w", err)
		}
		fmt.Printf("entity %q added\n", id)
		return nil
	},
}

var getCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Get an entity by ID",
	Args:  cobra.ExactArgs(1),
	PreRunE: openDB, PostRunE: closeDB,
	RunE: func(cmd *cobra.Command, args []string) error {
		includeVectors, _ := cmd.Flags().GetBool("vectors")
		e, err := db.Get(cmd.Context(), args[0], includeVectors)
		if err != nil {
			return fmt.Errorf("get: %w", err)
		}
		out, err := json.MarshalIndent(e, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete an entity",
	Args:  cobra.ExactArgs(1),
	PreRunE: openDB, PostRunE: closeDB,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := db.Delete(cmd.Context(), args[0]); err != nil {
			return fmt.Errorf("delete: %w", err)
		}
		fmt.Printf("entity %q deleted\n", args[0])
		return nil
	},
}

var relateCmd = &cobra.Command{
	Use:   "relate <from> <verb> <to>",
	Short: "Create a relationship between two entities",
	Args:  cobra.ExactArgs(3),
	PreRunE: openDB, PostRunE: closeDB,
	RunE: func(cmd *cobra.Command, args []string) error {
		bidirectional, _ := cmd.Flags().GetBool("bidirectional")
		id, err := db.Relate(cmd.Context(), store.RelateParams{
			From:          args[0],
			Type:          model.VerbType(args[1]),
			To:            args[2],
			Bidirectional: bidirectional,
		})
		if err != nil {
			return fmt.Errorf("relate: %w", err)
		}
		fmt.Printf("relationship %q created\n", id)
		return nil
	},
}

var findCmd = &cobra.Command{
	Use:   "find <query>",
	Short: "Run a hybrid text/semantic query",
	Args:  cobra.ExactArgs(1),
	PreRunE: openDB, PostRunE: closeDB,
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		mode, _ := cmd.Flags().GetString("mode")
		results, err := db.Find(cmd.Context(), query.Params{
			Query:      args[0],
			SearchMode: mode,
			Limit:      limit,
		})
		if err != nil {
			return fmt.Errorf("find: %w", err)
		}
		for _, r := range results {
			fmt.Printf("%.4f\t%s\n", r.Score, r.ID)
		}
		return nil
	},
}

var countsCmd = &cobra.Command{
	Use:   "counts",
	Short: "Print entity counts by type",
	PreRunE: openDB, PostRunE: closeDB,
	RunE: func(cmd *cobra.Command, args []string) error {
		counts := db.Counts()
		fmt.Printf("total: %d\n", counts.Entities())
		for t, n := range counts.ByType() {
			fmt.Printf("%s: %d\n", t, n)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "path", "./nvdb-data", "database directory")

	addCmd.Flags().String("type", "", "noun type")
	addCmd.Flags().String("vector", "", "comma-separated vector components")
	addCmd.Flags().String("metadata", "", "metadata as a JSON object")
	addCmd.Flags().String("data", "", "entity payload (string or JSON)")
	addCmd.Flags().String("service", "", "owning service name")

	getCmd.Flags().Bool("vectors", false, "include the stored vector")

	relateCmd.Flags().Bool("bidirectional", false, "mark the relationship bidirectional (stored as a flag; no reverse edge is created)")

	findCmd.Flags().Int("limit", 10, "maximum results")
	findCmd.Flags().String("mode", "auto", "search mode: auto|text|semantic|hybrid|vector")

	rootCmd.AddCommand(addCmd, getCmd, deleteCmd, relateCmd, findCmd, countsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
