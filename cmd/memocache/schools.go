package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/agentuity/go-memocache/docstore"
	"github.com/agentuity/go-memocache/tui"
	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
)

func newSchoolsCommand(a *app) *cobra.Command {
	var collection string
	cmd := &cobra.Command{
		Use:   "schools",
		Short: "Query and update the school document collection",
	}
	cmd.PersistentFlags().StringVar(&collection, "collection", "school", "collection (bucket) name")

	open := func() (docstore.Collection, error) {
		return a.openDocs(collection)
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List every document",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				c, err := open()
				if err != nil {
					return err
				}
				docs, err := docstore.ListAll(cmd.Context(), c)
				if err != nil {
					return err
				}
				return printDocuments(cmd.OutOrStdout(), docs)
			},
		},
		&cobra.Command{
			Use:   "insert <field=value>...",
			Short: "Insert a document and print its id",
			Long: `Insert a document built from field=value pairs. Values that parse as JSON
(numbers, arrays, objects, true/false) are stored as such, everything else
as a string.`,
			Args: cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				doc, err := parseFields(args)
				if err != nil {
					return err
				}
				c, err := open()
				if err != nil {
					return err
				}
				id, err := docstore.InsertSchool(cmd.Context(), c, doc)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), id)
				return nil
			},
		},
		&cobra.Command{
			Use:   "update-topics <name> [topic]...",
			Short: "Replace the topics of every school with the given name",
			Args:  cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				c, err := open()
				if err != nil {
					return err
				}
				n, err := docstore.UpdateTopics(cmd.Context(), c, args[0], args[1:])
				if err != nil {
					return err
				}
				a.log.Debug("updated topics of %d schools named %s", n, args[0])
				fmt.Fprintln(cmd.OutOrStdout(), n)
				return nil
			},
		},
		&cobra.Command{
			Use:   "by-topic <topic>",
			Short: "List the schools teaching a topic",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				c, err := open()
				if err != nil {
					return err
				}
				docs, err := docstore.SchoolsByTopic(cmd.Context(), c, args[0])
				if err != nil {
					return err
				}
				return printDocuments(cmd.OutOrStdout(), docs)
			},
		},
		&cobra.Command{
			Use:   "top-students",
			Short: "List students by average topic score, highest first",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				c, err := open()
				if err != nil {
					return err
				}
				students, err := docstore.TopStudents(cmd.Context(), c)
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(students))
				for _, s := range students {
					avg := "-"
					if s.AverageScore != nil {
						avg = strconv.FormatFloat(*s.AverageScore, 'f', 2, 64)
					}
					rows = append(rows, []string{s.ID, s.Name, avg})
				}
				fmt.Fprintln(cmd.OutOrStdout(), tui.Table([]string{"id", "name", "average"}, rows))
				return nil
			},
		},
	)
	return cmd
}

func parseFields(args []string) (docstore.Document, error) {
	doc := docstore.Document{}
	for _, arg := range args {
		key, raw, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			return nil, errors.Newf("invalid field %q, expected field=value", arg)
		}
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			v = raw
		}
		doc[key] = v
	}
	return doc, nil
}

func printDocuments(w io.Writer, docs []docstore.Document) error {
	enc := json.NewEncoder(w)
	for _, doc := range docs {
		if err := enc.Encode(doc); err != nil {
			return err
		}
	}
	return nil
}
