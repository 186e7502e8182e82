package main

import "github.com/frahmantamala/moncash-relay/cmd"

func main() {
	cmd.Execute()
}
