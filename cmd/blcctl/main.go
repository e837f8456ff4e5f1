package main

import (
	"os"

	"github.com/jessevdk/go-flags"
)

type Options struct {
	Detect  DetectCommand  `command:"detect" description:"Probe all BLC slots and print what answered"`
	Run     RunCommand     `command:"run" description:"Spin one motor at a fixed setpoint for a while"`
	Monitor MonitorCommand `command:"monitor" alias:"mon" description:"Live view of the bus with keyboard control"`
}

var opts Options
var parser = flags.NewParser(&opts, flags.Default)

func main() {
	parser.LongDescription = "blcctl - discover and drive BLC motor controllers on an I²C bus"

	_, err := parser.Parse()
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				os.Exit(0)
			}
		}
		os.Exit(1)
	}
}
