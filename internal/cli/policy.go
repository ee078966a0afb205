package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/pyisolate/guard/internal/loader"
	"github.com/pyisolate/guard/internal/output"
	"github.com/pyisolate/guard/internal/policy"
	"github.com/pyisolate/guard/pkg/domain"
)

var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Inspect and edit the pinned allow-list",
	Long: `Policy operates on the allow-list map pinned by a running guard.
Writes take effect for the next file open; decisions already in flight may
see either the old or the new entry.`,
}

var policySetCmd = &cobra.Command{
	Use:   "set INDEX PATH",
	Short: "Store PATH in slot INDEX",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		index, err := parseIndex(args[0])
		if err != nil {
			return err
		}
		return withPinnedTable(func(t *policy.MapTable) error {
			return t.Set(index, args[1])
		})
	},
}

var policyClearCmd = &cobra.Command{
	Use:   "clear INDEX",
	Short: "Empty slot INDEX",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		index, err := parseIndex(args[0])
		if err != nil {
			return err
		}
		return withPinnedTable(func(t *policy.MapTable) error {
			if err := t.Clear(index); err != nil {
				return err
			}
			var next domain.PathBuf
			if index+1 < domain.PolicySlots {
				if err := t.Lookup(index+1, &next); err == nil && !next.IsEmpty() {
					output.Notice(cmd.ErrOrStderr(), "slot %d is now a hole: entries from %d on are ignored", index, index+1)
				}
			}
			return nil
		})
	},
}

var policyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List populated slots",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withPinnedTable(func(t *policy.MapTable) error {
			entries, err := policy.List(t)
			if err != nil {
				return err
			}
			output.PolicyEntries(cmd.OutOrStdout(), entries)
			return nil
		})
	},
}

func init() {
	policyCmd.AddCommand(policySetCmd)
	policyCmd.AddCommand(policyClearCmd)
	policyCmd.AddCommand(policyListCmd)
}

func parseIndex(s string) (uint32, error) {
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid index %q: %w", s, err)
	}
	if n >= domain.PolicySlots {
		return 0, fmt.Errorf("index %d: %w", n, domain.ErrIndexOutOfRange)
	}
	return uint32(n), nil
}

func withPinnedTable(fn func(*policy.MapTable) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	t, err := policy.OpenPinnedMapTable(loader.PinnedPolicyPath(cfg.PinPath))
	if err != nil {
		return fmt.Errorf("is the guard running? %w", err)
	}
	defer t.Close()
	return fn(t)
}
