// Command decode-frame decodes captured scale frames offline.
// Each argument is one frame in hex, as printed in debug logs.
//
// Usage:
//
//	go run ./cmd/decode-frame [-kind auto|measurement|control] [-password hex] frame...
package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/chaz8081/bodyscale/internal/ble/protocol"
)

func main() {
	kind := flag.String("kind", "auto", "frame kind: auto, measurement or control")
	passwordHex := flag.String("password", "", "scale password in hex, to show the answer to a challenge")
	flag.Parse()

	if flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: decode-frame [-kind auto|measurement|control] [-password hex] frame...")
		os.Exit(2)
	}

	var password []byte
	if *passwordHex != "" {
		p, err := hex.DecodeString(*passwordHex)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: password: %v\n", err)
			os.Exit(2)
		}
		password = p
	}

	failed := false
	for _, arg := range flag.Args() {
		if err := describe(os.Stdout, arg, *kind, password); err != nil {
			fmt.Printf("%s: error: %v\n", arg, err)
			failed = true
		}
	}
	if failed {
		os.Exit(1)
	}
}

// describe decodes one hex frame and prints what it contains.
func describe(w io.Writer, frameHex, kind string, password []byte) error {
	clean := strings.NewReplacer(" ", "", ":", "", "-", "").Replace(frameHex)
	data, err := hex.DecodeString(clean)
	if err != nil {
		return fmt.Errorf("not hex: %w", err)
	}
	if len(data) == 0 {
		return fmt.Errorf("empty frame")
	}

	if kind == "auto" {
		kind = "measurement"
		if data[0] == protocol.OpPasswordBroadcast || data[0] == protocol.OpChallengeRequest {
			kind = "control"
		}
	}

	switch kind {
	case "measurement":
		m, err := protocol.DecodeMeasurement(data)
		if err != nil {
			return err
		}
		printMeasurement(w, clean, m)
		return nil
	case "control":
		return printControl(w, clean, data, password)
	default:
		return fmt.Errorf("unknown kind %q", kind)
	}
}

func printMeasurement(w io.Writer, frameHex string, m *protocol.Measurement) {
	fmt.Fprintf(w, "%s: measurement\n", frameHex)
	fmt.Fprintf(w, "  weight:       %.2f kg (display unit %s)\n", m.WeightKg, m.DisplayUnit)
	if m.Timestamp != nil {
		fmt.Fprintf(w, "  timestamp:    %s\n", m.Timestamp.Format(time.RFC3339))
	}
	if m.Resistance1 != nil {
		fmt.Fprintf(w, "  resistance1:  %g\n", *m.Resistance1)
	}
	if m.Resistance2 != nil {
		fmt.Fprintf(w, "  resistance2:  %g\n", *m.Resistance2)
	}
	if m.UserNumber != nil {
		fmt.Fprintf(w, "  user:         %d\n", *m.UserNumber)
	}
	if m.WeightStable != nil {
		fmt.Fprintf(w, "  stable:       %t\n", *m.WeightStable)
		fmt.Fprintf(w, "  impedance:    %s\n", *m.ImpedanceStatus)
		fmt.Fprintf(w, "  append data:  %t\n", *m.HasAppendData)
	}
}

func printControl(w io.Writer, frameHex string, data, password []byte) error {
	frame, err := protocol.ClassifyControlFrame(data)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%s: control frame (%s)\n", frameHex, frame.Kind)

	switch frame.Kind {
	case protocol.ControlPasswordBroadcast:
		fmt.Fprintf(w, "  password:     %x\n", frame.Payload)
	case protocol.ControlChallengeRequest:
		fmt.Fprintf(w, "  challenge:    %x\n", frame.Payload)
		if password != nil {
			resp, err := protocol.EncodeAuthResponse(frame.Payload, password)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "  response:     %x\n", resp)
		}
	}
	return nil
}
