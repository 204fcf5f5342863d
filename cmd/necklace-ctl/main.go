package main

import (
	"fmt"
	"os"
	"time"

	cli "github.com/spf13/pflag"

	"github.com/hotaka0908/raspi-voice/internal/ipc"
)

func main() {
	socket := cli.StringP("socket", "s", ipc.SocketPath, "Daemon socket path")
	hold := cli.DurationP("hold", "d", time.Second, "How long tap holds the button")
	cli.Parse()

	cmd := cli.Arg(0)
	switch cmd {
	case "press", "release":
		if err := ipc.SendCommand(*socket, cmd); err != nil {
			fmt.Println("necklace-daemon not running:", err)
			os.Exit(1)
		}
	case "tap":
		if err := ipc.SendCommand(*socket, "press"); err != nil {
			fmt.Println("necklace-daemon not running:", err)
			os.Exit(1)
		}
		time.Sleep(*hold)
		if err := ipc.SendCommand(*socket, "release"); err != nil {
			fmt.Println("necklace-daemon not running:", err)
			os.Exit(1)
		}
	default:
		fmt.Println("usage: necklace-ctl [--hold 1s] press|release|tap")
		os.Exit(2)
	}
}
