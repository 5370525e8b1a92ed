// Package slurm renders batch scripts and talks to the Slurm scheduler,
// either through the sbatch/sacct command line tools or through a
// slurmrestd endpoint.
package slurm

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/me/jobtree/pkg/jobfile"
	"github.com/me/jobtree/pkg/model"
)

// BatchOptions carries everything that ends up in the #SBATCH header of
// a generated script. String options with an empty value are omitted
// from the header.
type BatchOptions struct {
	Account     string
	Array       string // index range such as "0-14", empty for plain jobs
	Constraint  string
	CPUsPerTask int
	JobName     string
	MailType    string
	Output      string // log path pattern, used for stdout and stderr alike
	Partition   string
	QOS         string
	Time        string
	WorkDir     string
}

// ScriptSpec is one batch submission: the header options plus the body
// pieces the script is assembled from.
type ScriptSpec struct {
	Options      BatchOptions
	Dependency   string // colon-joined parent run ids, empty for none
	ArrayExports string // export block for array jobs, empty otherwise
	Interpreter  string
	Prolog       string
	Code         string
	Epilog       string
}

// DependencyConstraint folds a set of parent run ids into the id list
// of an afterok constraint. Array members collapse onto their base id,
// local runs have nothing to wait for and are dropped, and the result
// is deduplicated and sorted so equal inputs yield equal scripts.
func DependencyConstraint(runIDs []string) string {
	seen := make(map[string]bool)
	for _, id := range runIDs {
		base, _, _ := strings.Cut(id, "_")
		base = strings.TrimSpace(base)
		if base == "" || base == model.LocalRunID {
			continue
		}
		seen[base] = true
	}
	if len(seen) == 0 {
		return ""
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return strings.Join(ids, ":")
}

// Interpreter returns the heredoc interpreter line for a code type.
func Interpreter(codeType jobfile.CodeType) (string, error) {
	switch codeType {
	case jobfile.CodeTypeShell:
		return "bash -e", nil
	case jobfile.CodeTypePython:
		return "python3", nil
	}
	return "", fmt.Errorf("no interpreter for code type %q", codeType)
}

// Header renders the #SBATCH option block. The order is fixed so that
// generated scripts are reproducible, and every line ends in a newline.
func Header(opts BatchOptions) string {
	pairs := []struct {
		key   string
		value string
	}{
		{"account", opts.Account},
		{"acctg-freq", "energy=0"},
		{"array", opts.Array},
		{"constraint", opts.Constraint},
		{"cpus-per-task", strconv.Itoa(opts.CPUsPerTask)},
		{"error", opts.Output},
		{"export", "ALL"},
		{"job-name", opts.JobName},
		{"kill-on-invalid-dep", "yes"},
		{"mail-type", opts.MailType},
		{"nice", "0"},
		{"output", opts.Output},
		{"partition", opts.Partition},
		{"profile", "none"},
		{"qos", opts.QOS},
		{"time", opts.Time},
		{"chdir", opts.WorkDir},
	}

	var b strings.Builder
	for _, p := range pairs {
		if p.value == "" {
			continue
		}
		fmt.Fprintf(&b, "#SBATCH --%s='%s'\n", p.key, p.value)
	}
	return b.String()
}

// BuildScript assembles the full batch script for one submission. The
// prolog and epilog run under bash -e, the code itself under the job's
// interpreter; each section only runs when everything before it
// succeeded, and the final exit status is the first failure. The code
// heredoc is delimited by the hash of the code so no code line can
// terminate it early.
func BuildScript(spec ScriptSpec) string {
	depends := ""
	if spec.Dependency != "" {
		depends = fmt.Sprintf("#SBATCH --depend='afterok:%s'\n", spec.Dependency)
	}

	sum := sha1.Sum([]byte(spec.Code))
	delimiter := hex.EncodeToString(sum[:])

	var b strings.Builder
	b.WriteString("#!/bin/bash\n")
	b.WriteString(Header(spec.Options))
	b.WriteString(depends)
	b.WriteString(spec.ArrayExports)
	fmt.Fprintf(&b, "echo \"STARTING %s @ $(date +'%%FT%%T')\"\n", spec.Options.JobName)
	b.WriteString("\n")
	b.WriteString("export OMP_PROC_BIND=FALSE\n")
	fmt.Fprintf(&b, "export OMP_NUM_THREADS=%d\n", spec.Options.CPUsPerTask)
	fmt.Fprintf(&b, "cd \"%s\"\n", spec.Options.WorkDir)
	b.WriteString("\n")
	b.WriteString("ret=$?\n")
	writeSection(&b, "bash -e", "PROLOG", spec.Prolog)
	writeSection(&b, spec.Interpreter, delimiter, spec.Code)
	writeSection(&b, "bash -e", "EPILOG", spec.Epilog)
	b.WriteString("if [[ $ret == 0 ]]\n")
	b.WriteString("then\n")
	fmt.Fprintf(&b, "    echo \"DONE %s @ $(date +'%%FT%%T')\"\n", spec.Options.JobName)
	b.WriteString("else\n")
	fmt.Fprintf(&b, "    echo \"FAILED %s @ $(date +'%%FT%%T')\"\n", spec.Options.JobName)
	b.WriteString("fi\n")
	b.WriteString("exit $ret\n")
	return b.String()
}

func writeSection(b *strings.Builder, interpreter, delimiter, body string) {
	b.WriteString("if [[ $ret == 0 ]]\n")
	b.WriteString("then\n")
	fmt.Fprintf(b, "    %s <<'%s'\n", interpreter, delimiter)
	b.WriteString(body)
	b.WriteString("\n")
	b.WriteString(delimiter)
	b.WriteString("\n")
	b.WriteString("    ret=$?\n")
	b.WriteString("fi\n")
}
