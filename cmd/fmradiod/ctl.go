package main

import (
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/fmradiod/internal/tuner"
)

// newCtlCmd builds the command that drives a running daemon through its
// control path.
func newCtlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ctl",
		Short: "control a running daemon",
		Long:  `Send tune, seek and other control requests to a running fmradiod and print the result`,
		RunE: func(cmd *cobra.Command, args []string) error {
			query, err := ctlQuery(cmd)
			if err != nil {
				return err
			}
			addr, err := cmd.Flags().GetString("addr")
			if err != nil {
				return err
			}
			raw, err := cmd.Flags().GetBool("xml")
			if err != nil {
				return err
			}

			doc, code, err := fetchStatus(addr, query)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if raw {
				out.Write(doc)
			} else if err := printSummary(out, doc); err != nil {
				return err
			}
			if code != http.StatusOK {
				return fmt.Errorf("daemon answered %d", code)
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.String("addr", "http://127.0.0.1:8080/radio", "daemon control URL")
	flags.StringP("tune", "t", "", "tune to a frequency [101.1|101.1MHz]")
	flags.BoolP("up", "u", false, "seek up")
	flags.BoolP("down", "d", false, "seek down")
	flags.IntP("strength", "s", 0, "minimum signal strength for seek")
	flags.IntP("volume", "v", 0, "output volume [0-15]")
	flags.IntP("led", "l", 0, "LED code [0-7]")
	flags.Bool("rds", false, "enable RDS decoding (--rds=false disables)")
	flags.Bool("power", false, "enable audio playback (--power=false disables)")
	flags.BoolP("xml", "x", false, "print the raw status document")
	return cmd
}

// ctlQuery turns the flags that were set into control parameters.
func ctlQuery(cmd *cobra.Command) (url.Values, error) {
	flags := cmd.Flags()
	q := url.Values{}

	if flags.Changed("tune") {
		s, _ := flags.GetString("tune")
		mhz, err := tuner.ParseFrequency(s)
		if err != nil {
			return nil, err
		}
		q.Set("tune", strconv.FormatFloat(mhz, 'f', 2, 64))
	}

	up, _ := flags.GetBool("up")
	down, _ := flags.GetBool("down")
	switch {
	case up && down:
		return nil, fmt.Errorf("--up and --down are exclusive")
	case up:
		q.Set("seek", "up")
	case down:
		q.Set("seek", "down")
	}
	if flags.Changed("strength") {
		if !up && !down {
			return nil, fmt.Errorf("--strength needs --up or --down")
		}
		s, _ := flags.GetInt("strength")
		q.Set("strength", strconv.Itoa(s))
	}

	for _, name := range []string{"volume", "led"} {
		if flags.Changed(name) {
			v, _ := flags.GetInt(name)
			q.Set(name, strconv.Itoa(v))
		}
	}
	for _, name := range []string{"rds", "power"} {
		if flags.Changed(name) {
			v, _ := flags.GetBool(name)
			q.Set(name, boolParam(v))
		}
	}
	return q, nil
}

func boolParam(v bool) string {
	if v {
		return "1"
	}
	return "0"
}

// fetchStatus sends the query and returns the document and status code.
func fetchStatus(addr string, query url.Values) ([]byte, int, error) {
	u, err := url.Parse(addr)
	if err != nil {
		return nil, 0, fmt.Errorf("invalid address %q: %w", addr, err)
	}
	u.RawQuery = query.Encode()

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Get(u.String())
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	doc, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return doc, resp.StatusCode, nil
}

type statusDoc struct {
	Station   string `xml:"station,attr"`
	Tuned     int    `xml:"tuned,attr"`
	Stereo    int    `xml:"stereo,attr"`
	Signal    int    `xml:"signal,attr"`
	SignalMax int    `xml:"signal_max,attr"`
	Band      string `xml:"band,attr"`
	Callsign  string `xml:"callsign,attr"`
	PS        string `xml:"programservice,attr"`
	PTY       string `xml:"ptycode,attr"`
	Radiotext string `xml:"radiotext0,attr"`
	Error     string `xml:"error,attr"`
	Stations  []struct {
		Freq string `xml:"freq,attr"`
	} `xml:"station"`
}

// printSummary prints a short human-readable view of a status document.
func printSummary(w io.Writer, doc []byte) error {
	if len(doc) == 0 {
		return fmt.Errorf("empty response")
	}
	var st statusDoc
	if err := xml.Unmarshal(doc, &st); err != nil {
		return fmt.Errorf("failed to parse status: %w", err)
	}

	mode := "mono"
	if st.Stereo == 1 {
		mode = "stereo"
	}
	fmt.Fprintf(w, "%s MHz (%s) signal %d/%d %s\n", st.Station, st.Band, st.Signal, st.SignalMax, mode)
	if st.Callsign != "" {
		fmt.Fprintf(w, "%s %s [%s] %s\n", st.Callsign, st.PS, st.PTY, st.Radiotext)
	}
	fmt.Fprintf(w, "%d stations:", len(st.Stations))
	for _, s := range st.Stations {
		fmt.Fprintf(w, " %s", s.Freq)
	}
	fmt.Fprintln(w)
	if st.Error != "" {
		fmt.Fprintf(w, "error: %s\n", st.Error)
	}
	return nil
}
