// Command bistro runs the bistro build, which keeps its data in bistro.db
// and only exposes the sql and shell plugins.
package main

import "github.com/simplepos/shell/internal/profile"

func main() {
	profile.NewBistro().Run()
}
