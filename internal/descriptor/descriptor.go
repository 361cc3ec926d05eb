// Package descriptor identifies one managed child: a path to a YAML
// config, or a direct server-args record, or a direct client-args
// record. Descriptors are comparable and totally ordered so they can
// key a map and be sorted for deterministic logging.
package descriptor

import "fmt"

// Kind tags which variant a Descriptor holds.
type Kind int

const (
	// KindPath identifies a child by the path to its YAML config file.
	KindPath Kind = iota
	// KindServerArgs identifies a child started from direct server args
	// (bypassing discovery).
	KindServerArgs
	// KindClientArgs identifies a child started from direct client args.
	KindClientArgs
)

func (k Kind) String() string {
	switch k {
	case KindPath:
		return "path"
	case KindServerArgs:
		return "server-args"
	case KindClientArgs:
		return "client-args"
	default:
		return "unknown"
	}
}

// Role says whether a descriptor's child runs the server or the
// client worker. For KindServerArgs/KindClientArgs it is implied by
// the Kind; for KindPath it is decided by the configuration
// classifier (internal/config) at discovery time and carried here so
// the supervisor doesn't need to re-parse the file to pick a
// sub-command.
type Role int

const (
	// RoleServer runs the child as "sub-server".
	RoleServer Role = iota
	// RoleClient runs the child as "sub-client".
	RoleClient
)

func (r Role) String() string {
	if r == RoleClient {
		return "client"
	}
	return "server"
}

// Descriptor is a comparable value usable as a map key. Two
// descriptors with the same Kind, Role and Value are the same child.
type Descriptor struct {
	Kind  Kind
	Role  Role
	Value string
}

// Path builds a path-kind descriptor whose classification into
// server/client role has already been resolved by the caller.
func Path(p string, role Role) Descriptor {
	return Descriptor{Kind: KindPath, Role: role, Value: p}
}

// ServerArgs builds a server-args-kind descriptor from the CLI's
// direct invocation. configPath is the worker's optional config file;
// empty means the worker is spawned with no -c flag and runs on its
// built-in defaults.
func ServerArgs(configPath string) Descriptor {
	return Descriptor{Kind: KindServerArgs, Role: RoleServer, Value: configPath}
}

// ClientArgs builds a client-args-kind descriptor.
func ClientArgs(configPath string) Descriptor {
	return Descriptor{Kind: KindClientArgs, Role: RoleClient, Value: configPath}
}

// Key returns a stable string representation suitable for logging,
// sorting, and use as a secondary index.
func (d Descriptor) Key() string {
	return fmt.Sprintf("%s:%s:%s", d.Kind, d.Role, d.Value)
}

// Less gives Descriptor a total order for deterministic iteration.
func (d Descriptor) Less(other Descriptor) bool {
	if d.Kind != other.Kind {
		return d.Kind < other.Kind
	}
	if d.Role != other.Role {
		return d.Role < other.Role
	}
	return d.Value < other.Value
}

// SubCommand returns the re-exec subcommand name used to launch the
// child process for this descriptor ("sub-server" or "sub-client").
func (d Descriptor) SubCommand() string {
	if d.Role == RoleClient {
		return "sub-client"
	}
	return "sub-server"
}

func (d Descriptor) String() string { return d.Key() }
