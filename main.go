// Ruleset Builder
// Builds mihomo rulesets from JSON rule sources.
package main

import "github.com/xxxbrian/ruleset-builder/cmd"

func main() {
	cmd.Execute()
}
