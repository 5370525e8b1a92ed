package cli

import (
	"fmt"
	"io"
	"sort"

	"github.com/me/jobtree/internal/parser"
	"github.com/me/jobtree/pkg/jobfile"
	"github.com/spf13/cobra"
)

func newTreeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tree",
		Short: "Show the dependency trees of the jobs document",
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := loadDocument(parser.New(logger), "")
			if err != nil {
				return err
			}
			return printTrees(cmd.OutOrStdout(), file)
		},
	}
}

// printTrees draws one tree per root job, a job nobody depends on,
// with each job's dependencies as its children.
func printTrees(out io.Writer, file *jobfile.File) error {
	children := make(map[string][]string)
	dependedOn := make(map[string]bool)
	for _, name := range file.JobNames() {
		def, err := file.Definition(name)
		if err != nil {
			return err
		}
		deps := make([]string, 0, len(def.Depends))
		for _, dep := range def.Depends {
			deps = append(deps, dep.Job)
			dependedOn[dep.Job] = true
		}
		sort.Strings(deps)
		children[name] = deps
	}

	first := true
	for _, name := range file.JobNames() {
		if dependedOn[name] {
			continue
		}
		if !first {
			fmt.Fprintln(out)
		}
		first = false
		fmt.Fprintln(out, name)
		writeBranches(out, children, children[name], " ", map[string]bool{name: true})
	}
	return nil
}

func writeBranches(out io.Writer, children map[string][]string, jobs []string, prefix string, path map[string]bool) {
	for i, job := range jobs {
		connector, descent := "├─ ", "│  "
		if i == len(jobs)-1 {
			connector, descent = "└─ ", "   "
		}
		fmt.Fprintf(out, "%s%s%s\n", prefix, connector, job)
		// A cyclic document still gets a finite tree.
		if path[job] {
			continue
		}
		path[job] = true
		writeBranches(out, children, children[job], prefix+descent, path)
		delete(path, job)
	}
}
