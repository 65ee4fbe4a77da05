package main

import "github.com/sambabib/dephealth/cmd"

func main() {
	cmd.Execute()
}
