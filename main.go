package main

import "github.com/khangpv/imgprep/cmd"

func main() {
	cmd.Execute()
}
