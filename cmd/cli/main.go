// Command cli is an interactive client for the storage engine's TCP line
// protocol: it dials the server, relays stdin lines to it, and prints
// whatever comes back.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/dd0wney/lsmtree/internal/protocol"
)

func main() {
	addr := flag.String("addr", "localhost:4040", "server address")
	flag.Parse()

	conn, err := net.Dial("tcp", *addr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect to %s: %v\n", *addr, err)
		os.Exit(1)
	}
	defer conn.Close()

	fmt.Printf("connected to %s\n", *addr)
	fmt.Println(`type "h" for help, "q" to quit`)

	serverReader := bufio.NewScanner(conn)
	serverReader.Split(protocol.ScanFrames)
	stdinReader := bufio.NewScanner(os.Stdin)
	writer := bufio.NewWriter(conn)

	for {
		fmt.Print("> ")
		if !stdinReader.Scan() {
			break
		}
		line := stdinReader.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}

		if _, err := fmt.Fprintf(writer, "%s\r\n", line); err != nil {
			fmt.Fprintf(os.Stderr, "write: %v\n", err)
			return
		}
		if err := writer.Flush(); err != nil {
			fmt.Fprintf(os.Stderr, "write: %v\n", err)
			return
		}

		if !serverReader.Scan() {
			fmt.Fprintln(os.Stderr, "server closed the connection")
			return
		}
		fmt.Println(serverReader.Text())

		if strings.TrimSpace(line) == "q" {
			return
		}
	}
}
