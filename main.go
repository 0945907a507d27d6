// Command treefuse mounts a declarative JSON tree document as a read-only
// synthetic FUSE filesystem: no backing storage, file content synthesized
// on demand.
package main

import "treefuse/cmd"

func main() {
	cmd.Execute()
}
