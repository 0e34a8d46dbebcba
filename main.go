package main

import "github.com/naka-gawa/gitlab-report/cmd"

func main() {
	cmd.Execute()
}
