package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	serverURL    string
	noAutoStart  bool
	serverConfig string
	rootCmd      = &cobra.Command{
		Use:   "mediafetch",
		Short: "mediafetch CLI - acquire local media files by link or query",
		Long:  `A command-line client for the mediafetch server: acquire audio or video files, inspect link resolution, statistics and event logs.`,
	}

	okColor   = color.New(color.FgHiGreen)
	failColor = color.New(color.FgHiRed, color.Bold)
	dimColor  = color.New(color.FgWhite, color.Italic)
)

// acquire can wait up to the server's hard timeout
var acquireClient = &http.Client{Timeout: 5 * time.Minute}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8090", "Server URL")
	rootCmd.PersistentFlags().StringVar(&serverConfig, "config", "", "Config file passed to an auto-started server")
	rootCmd.PersistentFlags().BoolVar(&noAutoStart, "no-auto-start", false, "Don't auto-start server if not running")

	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(resetStatsCmd)
	rootCmd.AddCommand(eventsCmd)
}

// ensureServer checks if server is running and starts it if needed (unless --no-auto-start)
func ensureServer() {
	if noAutoStart {
		return
	}
	if err := ensureServerRunning(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}
}

func fatal(format string, args ...any) {
	failColor.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

func readJSON(resp *http.Response, out any) []byte {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		fatal("%v", err)
	}
	if out != nil {
		_ = json.Unmarshal(body, out)
	}
	return body
}

var getCmd = &cobra.Command{
	Use:   "get [link|query]",
	Short: "Acquire a local file for a link, id or search query",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()
		video, _ := cmd.Flags().GetBool("video")

		data, _ := json.Marshal(map[string]any{
			"link":  args[0],
			"video": video,
		})
		resp, err := acquireClient.Post(serverURL+"/api/v1/acquire", "application/json", bytes.NewBuffer(data))
		if err != nil {
			fatal("%v", err)
		}
		defer resp.Body.Close()

		var result map[string]any
		readJSON(resp, &result)
		if resp.StatusCode != http.StatusOK {
			failColor.Println("Acquisition failed")
			if key, ok := result["key"]; ok {
				fmt.Printf("  Key:  %v\n", key)
			}
			os.Exit(1)
		}

		okColor.Println("Acquired")
		fmt.Printf("  Key:    %v\n", result["key"])
		fmt.Printf("  Tier:   %v\n", result["tier"])
		fmt.Printf("  File:   %v\n", result["file_path"])
		if shared, _ := result["shared"].(bool); shared {
			dimColor.Println("  (joined an in-flight acquisition)")
		}
	},
}

var resolveCmd = &cobra.Command{
	Use:   "resolve [link]",
	Short: "Show how a link resolves without acquiring it",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()
		video, _ := cmd.Flags().GetBool("video")

		params := url.Values{"link": {args[0]}}
		if video {
			params.Set("variant", "video")
		}
		resp, err := http.Get(serverURL + "/api/v1/resolve?" + params.Encode())
		if err != nil {
			fatal("%v", err)
		}
		defer resp.Body.Close()

		var res map[string]any
		body := readJSON(resp, &res)
		if resp.StatusCode != http.StatusOK {
			fatal("%s", string(body))
		}

		fmt.Printf("Input:      %v\n", res["input"])
		fmt.Printf("Key:        %v\n", res["key"])
		if id, ok := res["identifier"]; ok {
			fmt.Printf("Identifier: %v\n", id)
		} else {
			dimColor.Println("Identifier: none (search query)")
		}
		fmt.Printf("URL:        %v\n", res["is_url"])
		if safe, _ := res["safe"].(bool); safe {
			okColor.Println("Safe:       yes")
		} else {
			failColor.Println("Safe:       no")
		}
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show acquisition statistics",
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()
		resp, err := http.Get(serverURL + "/api/v1/stats")
		if err != nil {
			fatal("%v", err)
		}
		defer resp.Body.Close()

		var stats map[string]any
		readJSON(resp, &stats)

		names := make([]string, 0, len(stats))
		for name := range stats {
			if name != "success_rate" {
				names = append(names, name)
			}
		}
		sort.Strings(names)

		fmt.Println("Acquisition Statistics:")
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		for _, name := range names {
			fmt.Fprintf(w, "  %s\t%v\n", name, stats[name])
		}
		w.Flush()

		if rate, ok := stats["success_rate"].(float64); ok {
			c := okColor
			if rate < 50 {
				c = failColor
			}
			c.Printf("  success_rate  %.1f%%\n", rate)
		}
	},
}

var resetStatsCmd = &cobra.Command{
	Use:   "reset-stats",
	Short: "Reset acquisition statistics",
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()
		resp, err := http.Post(serverURL+"/api/v1/stats/reset", "application/json", nil)
		if err != nil {
			fatal("%v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			fatal("%s", string(readJSON(resp, nil)))
		}
		okColor.Println("Statistics reset")
	},
}

type eventEntry struct {
	Timestamp string         `json:"ts"`
	Level     string         `json:"level"`
	Message   string         `json:"msg"`
	Fields    map[string]any `json:"fields"`
}

var eventsCmd = &cobra.Command{
	Use:       "events [acquire|error]",
	Short:     "Show recent events from a category log",
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"acquire", "error"},
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()
		limit, _ := cmd.Flags().GetInt("limit")
		date, _ := cmd.Flags().GetString("date")

		params := url.Values{"limit": {strconv.Itoa(limit)}}
		if date != "" {
			params.Set("date", date)
		}
		resp, err := http.Get(serverURL + "/api/v1/events/" + args[0] + "?" + params.Encode())
		if err != nil {
			fatal("%v", err)
		}
		defer resp.Body.Close()

		var result struct {
			Date    string       `json:"date"`
			Entries []eventEntry `json:"entries"`
		}
		body := readJSON(resp, &result)
		if resp.StatusCode != http.StatusOK {
			fatal("%s", string(body))
		}

		if len(result.Entries) == 0 {
			dimColor.Printf("No %s events for %s\n", args[0], result.Date)
			return
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "TIME\tLEVEL\tEVENT\tKEY")
		for _, e := range result.Entries {
			fmt.Fprintf(w, "%s\t%s\t%s\t%v\n", e.Timestamp, e.Level, e.Message, e.Fields["key"])
		}
		w.Flush()
	},
}

func init() {
	getCmd.Flags().BoolP("video", "v", false, "Acquire the video variant")
	resolveCmd.Flags().BoolP("video", "v", false, "Resolve the video variant key")
	eventsCmd.Flags().IntP("limit", "n", 50, "Number of entries to show")
	eventsCmd.Flags().StringP("date", "d", "", "Day to read (YYYY-MM-DD), defaults to today")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
