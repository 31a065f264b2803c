package main

import "github.com/ValentinKolb/tsbatch/cmd"

func main() {
	cmd.Execute()
}
