package main

import "github.com/theirongolddev/bedrockmon/cmd"

func main() {
	cmd.Execute()
}
