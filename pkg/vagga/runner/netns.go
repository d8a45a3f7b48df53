package runner

import "fmt"

// NetnsConfig is the narrow boundary type the runner accepts for network
// partitioning: the veth/bridge/address assignment a supervising tool
// would hand it. Actually creating the veth pair and wiring the bridge
// is out of scope (spec.md §1's Non-goals). cmd/vagga fills one in from
// `_run_in_netns`'s --bridge/--address/--gateway flags or from a
// manifest command's network entry.
type NetnsConfig struct {
	Bridge  string
	Address string
	Gateway string
}

// JoinNetns attaches the already-unshared network namespace (created by
// sandbox.Enter when Config.Network is set) to cfg's veth/address
// assignment. Since the actual interface creation is the external tool's
// job, this is a thin validation-only stand-in: it refuses an empty
// Address/Bridge rather than silently running with an unconfigured
// namespace, but performs no netlink calls of its own.
func JoinNetns(cfg *NetnsConfig) error {
	if cfg.Bridge == "" || cfg.Address == "" {
		return fmt.Errorf("runner: netns config requires Bridge and Address (veth wiring is out of scope, %q/%q given)", cfg.Bridge, cfg.Address)
	}
	return nil
}
