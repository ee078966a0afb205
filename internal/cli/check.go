package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pyisolate/guard/internal/hooks/fsfilter"
	"github.com/pyisolate/guard/internal/output"
	"github.com/pyisolate/guard/internal/policy"
)

var (
	checkPolicyFile string
	checkFailOnDeny bool
)

var checkCmd = &cobra.Command{
	Use:   "check PATH...",
	Short: "Decide file opens against a policy file without loading anything",
	Long: `Check runs the same exact-match, fail-closed decision the kernel file
filter makes, against a policy file, entirely in user space.`,
	Example: `  # Which of these may a sandbox open?
  pyisolate-guard check --policy policy.yaml /etc/passwd /etc/passwd2`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().StringVarP(&checkPolicyFile, "policy", "p", "", "policy file")
	checkCmd.Flags().BoolVar(&checkFailOnDeny, "fail-on-deny", false, "exit non-zero if any path is denied")
	checkCmd.MarkFlagRequired("policy")
}

func runCheck(cmd *cobra.Command, args []string) error {
	f, err := policy.LoadFile(checkPolicyFile)
	if err != nil {
		return err
	}
	table := policy.NewArrayTable()
	if err := f.Apply(table); err != nil {
		return err
	}

	filter := fsfilter.New(table)
	denied := 0
	for _, path := range args {
		v := filter.CheckPath(path, 0)
		if !v.Allowed {
			denied++
		}
		output.Verdict(cmd.OutOrStdout(), path, v)
	}

	if checkFailOnDeny && denied > 0 {
		return fmt.Errorf("%d of %d paths denied", denied, len(args))
	}
	return nil
}
