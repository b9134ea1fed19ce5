package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dougsko/ftxcat/pkg/client"
)

var (
	socketPath = flag.String("socket", "/tmp/ftxd.sock", "Unix socket path")
	command    = flag.String("cmd", "", "Command to send (e.g., 'STATUS', 'FREQ:14074000')")
	timeout    = flag.Duration("timeout", 5*time.Second, "Command timeout")
)

func main() {
	flag.Parse()

	if *socketPath == "" {
		fmt.Fprintf(os.Stderr, "Socket path is required\n")
		os.Exit(1)
	}

	if *command == "" {
		if len(flag.Args()) > 0 {
			*command = strings.Join(flag.Args(), " ")
		} else {
			showHelp()
			return
		}
	}

	c := client.NewSocketClient(*socketPath)
	c.SetTimeout(*timeout)

	response, err := c.SendCommand(*command)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("%s\n", response.String())
	if !response.Success {
		os.Exit(2)
	}
}

func showHelp() {
	fmt.Println("ftxctl - FTX-1 CAT Daemon Control Tool")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Printf("  %s [options] <command>\n", os.Args[0])
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  -socket <path>    Unix socket path (default: /tmp/ftxd.sock)")
	fmt.Println("  -cmd <command>    Command to send")
	fmt.Println("  -timeout <dur>    Command timeout (default: 5s)")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  STATUS                    Get daemon status")
	fmt.Println("  PING                      Test connection")
	fmt.Println("  INFO                      Read frequency, mode, channel, clarifier and power")
	fmt.Println("  FREQ[:SUB]                Get VFO frequency")
	fmt.Println("  FREQ[:SUB]:<hz>           Set VFO frequency")
	fmt.Println("  POWER                     Get output power")
	fmt.Println("  POWER:<watts>[:AMP]       Set output power (FIELD 5-10 W, AMP 5-100 W)")
	fmt.Println("  MODE[:SUB][:<mode>]       Get or set operating mode")
	fmt.Println("  PTT[:ON|OFF]              Get or set transmit")
	fmt.Println("  ID                        Read radio identifier")
	fmt.Println("  HISTORY[:n]               Get the last n state snapshots")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Printf("  %s STATUS\n", os.Args[0])
	fmt.Printf("  %s FREQ:SUB:7074000\n", os.Args[0])
	fmt.Printf("  %s MODE:DATA-U\n", os.Args[0])
	fmt.Printf("  echo 'INFO' | nc -U /tmp/ftxd.sock\n")
}
