// Command uaictl is the operator CLI for the captured daemon's local
// HTTP API: search, timeline, stats, entity views, and RAG questions.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

var (
	serverURL string
	version   = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "uaictl:", err)
		os.Exit(1)
	}
}

var (
	flagSearch string
	flagRecent int
	flagStats  bool
	flagSource string
	flagType   string
	flagLimit  int
)

var rootCmd = &cobra.Command{
	Use:   "uaictl",
	Short: "CLI for the captured daemon",
	Long: `uaictl queries the captured daemon's local HTTP API.

Examples:
  uaictl --search "python tutorial"
  uaictl --recent 20
  uaictl --stats
  uaictl ask "what did I read about budgets last week?"
  uaictl entities --kind person`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		switch {
		case flagSearch != "":
			return runSearch(flagSearch)
		case flagRecent > 0:
			return runRecent(flagRecent)
		case flagStats:
			return runStats()
		case flagType != "":
			return runClipboardByType(flagType)
		}
		return cmd.Help()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://127.0.0.1:9090", "captured server URL")
	rootCmd.PersistentFlags().IntVar(&flagLimit, "limit", 20, "maximum results")

	rootCmd.Flags().StringVar(&flagSearch, "search", "", "run a lexical search")
	rootCmd.Flags().IntVar(&flagRecent, "recent", 0, "show the N most recent records")
	rootCmd.Flags().BoolVar(&flagStats, "stats", false, "show store statistics")
	rootCmd.Flags().StringVar(&flagSource, "source", "", "restrict to a source: screen|clipboard|file")
	rootCmd.Flags().StringVar(&flagType, "type", "", "list recent clipboard entries of this content type")

	askCmd.Flags().BoolVar(&askPlanned, "planned", false, "use the multi-step planner")
	timelineCmd.Flags().IntVar(&timelineDays, "days", 7, "window in days")
	entitiesCmd.Flags().StringVar(&entityKind, "kind", "", "entity kind filter")

	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(semanticCmd)
	rootCmd.AddCommand(timelineCmd)
	rootCmd.AddCommand(entitiesCmd)
	rootCmd.AddCommand(peopleCmd)
	rootCmd.AddCommand(orgsCmd)
	rootCmd.AddCommand(graphCmd)
}

type contentRecord struct {
	ID         int64     `json:"ID"`
	Text       string    `json:"Text"`
	Source     string    `json:"Source"`
	CapturedAt time.Time `json:"CapturedAt"`
}

type searchHit struct {
	Record  contentRecord `json:"Record"`
	Preview string        `json:"Preview"`
}

func runSearch(query string) error {
	params := url.Values{"q": {query}, "limit": {strconv.Itoa(flagLimit)}}
	if flagSource != "" {
		params.Set("source", flagSource)
	}
	var hits []searchHit
	if err := getJSON("/api/search?"+params.Encode(), &hits); err != nil {
		return err
	}
	if len(hits) == 0 {
		fmt.Println("no matches")
		return nil
	}
	for _, hit := range hits {
		fmt.Printf("[%s] #%d %s\n    %s\n",
			hit.Record.Source, hit.Record.ID,
			hit.Record.CapturedAt.Format(time.RFC3339), hit.Preview)
	}
	return nil
}

func runRecent(n int) error {
	params := url.Values{"days": {"365"}, "limit": {strconv.Itoa(n)}}
	if flagSource != "" {
		params.Set("source", flagSource)
	}
	var records []contentRecord
	if err := getJSON("/api/timeline?"+params.Encode(), &records); err != nil {
		return err
	}
	for _, rec := range records {
		fmt.Printf("[%s] #%d %s\n    %s\n",
			rec.Source, rec.ID, rec.CapturedAt.Format(time.RFC3339), clip(rec.Text, 120))
	}
	return nil
}

func runClipboardByType(contentType string) error {
	params := url.Values{"type": {contentType}, "limit": {strconv.Itoa(flagLimit)}}
	var entries []struct {
		ID             int64     `json:"ID"`
		Text           string    `json:"Text"`
		ClassifiedType string    `json:"ClassifiedType"`
		CapturedAt     time.Time `json:"CapturedAt"`
	}
	if err := getJSON("/api/clipboard?"+params.Encode(), &entries); err != nil {
		return err
	}
	for _, e := range entries {
		fmt.Printf("[%s] #%d %s\n    %s\n",
			e.ClassifiedType, e.ID, e.CapturedAt.Format(time.RFC3339), clip(e.Text, 120))
	}
	return nil
}

func runStats() error {
	var stats map[string]any
	if err := getJSON("/api/stats", &stats); err != nil {
		return err
	}
	out, err := json.MarshalIndent(stats, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

var askPlanned bool

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a question over your captured history",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		question := args[0]
		for _, arg := range args[1:] {
			question += " " + arg
		}
		body, err := json.Marshal(map[string]any{
			"question": question,
			"planned":  askPlanned,
		})
		if err != nil {
			return err
		}

		resp, err := http.Post(serverURL+"/api/ask", "application/json", bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("is captured running? %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			msg, _ := io.ReadAll(resp.Body)
			return fmt.Errorf("server returned %s: %s", resp.Status, msg)
		}

		var answer struct {
			Answer    string `json:"answer"`
			ModelUsed string `json:"model_used"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&answer); err != nil {
			return err
		}
		fmt.Println(answer.Answer)
		fmt.Printf("\n(model: %s)\n", answer.ModelUsed)
		return nil
	},
}

var semanticCmd = &cobra.Command{
	Use:   "semantic <query>",
	Short: "Semantic similarity search (falls back to lexical when degraded)",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		params := url.Values{"q": {args[0]}, "limit": {strconv.Itoa(flagLimit)}}
		var hits []struct {
			Record   contentRecord `json:"Record"`
			Distance float64       `json:"Distance"`
			Preview  string        `json:"Preview"`
		}
		if err := getJSON("/api/semantic-search?"+params.Encode(), &hits); err != nil {
			return err
		}
		for _, hit := range hits {
			fmt.Printf("[%s] #%d d=%.4f\n    %s\n",
				hit.Record.Source, hit.Record.ID, hit.Distance, hit.Preview)
		}
		return nil
	},
}

var timelineDays int

var timelineCmd = &cobra.Command{
	Use:   "timeline",
	Short: "Records captured in the last N days",
	RunE: func(_ *cobra.Command, _ []string) error {
		params := url.Values{
			"days":  {strconv.Itoa(timelineDays)},
			"limit": {strconv.Itoa(flagLimit)},
		}
		var records []contentRecord
		if err := getJSON("/api/timeline?"+params.Encode(), &records); err != nil {
			return err
		}
		for _, rec := range records {
			fmt.Printf("[%s] #%d %s\n    %s\n",
				rec.Source, rec.ID, rec.CapturedAt.Format(time.RFC3339), clip(rec.Text, 120))
		}
		return nil
	},
}

var entityKind string

var entitiesCmd = &cobra.Command{
	Use:   "entities",
	Short: "List extracted entity mentions",
	RunE: func(_ *cobra.Command, _ []string) error {
		params := url.Values{"limit": {strconv.Itoa(flagLimit)}}
		if entityKind != "" {
			params.Set("kind", entityKind)
		}
		var mentions []struct {
			Text string `json:"Text"`
			Kind string `json:"Kind"`
		}
		if err := getJSON("/api/entities?"+params.Encode(), &mentions); err != nil {
			return err
		}
		for _, m := range mentions {
			fmt.Printf("%-14s %s\n", m.Kind, m.Text)
		}
		return nil
	},
}

var peopleCmd = &cobra.Command{
	Use:   "people",
	Short: "People mentioned in your history, most mentioned first",
	RunE:  func(_ *cobra.Command, _ []string) error { return printProfiles("/api/people") },
}

var orgsCmd = &cobra.Command{
	Use:   "orgs",
	Short: "Organizations mentioned in your history",
	RunE:  func(_ *cobra.Command, _ []string) error { return printProfiles("/api/organizations") },
}

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Entity co-mention graph",
	RunE: func(_ *cobra.Command, _ []string) error {
		var graph struct {
			Nodes []struct {
				Text         string `json:"text"`
				Kind         string `json:"kind"`
				MentionCount int    `json:"mention_count"`
			} `json:"nodes"`
			Edges []struct {
				Source string `json:"source"`
				Target string `json:"target"`
				Weight int    `json:"weight"`
			} `json:"edges"`
		}
		if err := getJSON("/api/relationships?limit="+strconv.Itoa(flagLimit), &graph); err != nil {
			return err
		}
		for _, n := range graph.Nodes {
			fmt.Printf("%-14s %-30s %d mentions\n", n.Kind, n.Text, n.MentionCount)
		}
		if len(graph.Edges) > 0 {
			fmt.Println()
			for _, e := range graph.Edges {
				fmt.Printf("%s -- %s (%d)\n", e.Source, e.Target, e.Weight)
			}
		}
		return nil
	},
}

func printProfiles(path string) error {
	var profiles []struct {
		Text         string   `json:"text"`
		MentionCount int      `json:"mention_count"`
		Contexts     []string `json:"recent_contexts"`
	}
	if err := getJSON(path+"?limit="+strconv.Itoa(flagLimit), &profiles); err != nil {
		return err
	}
	for _, p := range profiles {
		fmt.Printf("%-30s %d mentions\n", p.Text, p.MentionCount)
		for _, ctx := range p.Contexts {
			fmt.Printf("    %s\n", clip(ctx, 100))
		}
	}
	return nil
}

func getJSON(path string, dst any) error {
	resp, err := http.Get(serverURL + path)
	if err != nil {
		return fmt.Errorf("is captured running? %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned %s: %s", resp.Status, msg)
	}
	return json.NewDecoder(resp.Body).Decode(dst)
}

func clip(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "…"
}
