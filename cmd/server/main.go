// Command server runs the point-of-sale app: it boots the plugins, migrates
// simple-pos.db and serves the bridge the webview talks to.
//
//	server            # serve (default)
//	server migrate    # run pending migrations and exit
package main

import "github.com/simplepos/shell/internal/profile"

func main() {
	profile.NewNative().Run()
}
