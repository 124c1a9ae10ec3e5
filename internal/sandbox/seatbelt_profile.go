package sandbox

import (
	"fmt"
	"strings"
)

const seatbeltBase = `(version 1)
(deny default)
(allow process-exec)
(allow process-fork)
(allow signal (target self))
(allow sysctl-read)
(allow mach-lookup)
(allow ipc-posix-shm)
(allow file-read*)
(allow file-write-data
  (require-all (path "/dev/null") (vnode-type CHARACTER-DEVICE)))
`

// SeatbeltProfile renders the SBPL profile for policy together with the
// -D parameter definitions it references.
func SeatbeltProfile(policy Policy) (string, []string) {
	var b strings.Builder
	b.WriteString(seatbeltBase)

	var params []string
	roots := policy.WritableRoots()
	if len(roots) > 0 {
		b.WriteString("(allow file-write*\n")
		for i, root := range roots {
			name := fmt.Sprintf("WRITABLE_ROOT_%d", i)
			fmt.Fprintf(&b, "  (subpath (param %q))\n", name)
			params = append(params, "-D"+name+"="+root)
		}
		b.WriteString(")\n")
	}
	if policy.NetworkAccess {
		b.WriteString("(allow network-outbound)\n(allow network-inbound)\n(allow system-socket)\n")
	}
	return b.String(), params
}

func seatbeltArgs(argv []string, policy Policy) []string {
	profile, params := SeatbeltProfile(policy)
	args := make([]string, 0, 3+len(params)+len(argv))
	args = append(args, "-p", profile)
	args = append(args, params...)
	args = append(args, "--")
	return append(args, argv...)
}
