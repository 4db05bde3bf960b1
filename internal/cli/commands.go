package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/airblackbox/runtime-aibom-emitter/internal/emission"
	"github.com/airblackbox/runtime-aibom-emitter/internal/publisher"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check emitter health",
	RunE:  runHealth,
}

var observeCmd = &cobra.Command{
	Use:   "observe",
	Short: "Observe agent episodes",
	RunE:  runObserve,
}

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Show the emission summary for an agent",
	RunE:  runSummary,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List collected emissions",
	RunE:  runList,
}

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Publish unpublished emissions to an AIBOM",
	RunE:  runPublish,
}

var emitCmd = &cobra.Command{
	Use:   "emit",
	Short: "Record a single emission",
	RunE:  runEmit,
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export collected emissions to a JSON file on the server",
	RunE:  runExport,
}

var aibomCmd = &cobra.Command{
	Use:   "aibom",
	Short: "Print the runtime AIBOM document for an agent",
	RunE:  runAIBOM,
}

var deliveriesCmd = &cobra.Command{
	Use:   "deliveries",
	Short: "Show the delivery ledger",
	RunE:  runDeliveries,
}

func init() {
	observeCmd.Flags().String("agent-id", "", "Agent ID")
	observeCmd.Flags().Int("limit", 100, "Episode limit")
	_ = observeCmd.MarkFlagRequired("agent-id")

	summaryCmd.Flags().String("agent-id", "", "Agent ID")
	_ = summaryCmd.MarkFlagRequired("agent-id")

	listCmd.Flags().String("agent-id", "", "Filter by agent")
	listCmd.Flags().String("type", "", "Filter by emission type ("+emission.TypeNames()+")")

	publishCmd.Flags().String("aibom-id", "", "AIBOM ID")
	publishCmd.Flags().String("agent-id", "", "Filter by agent")
	_ = publishCmd.MarkFlagRequired("aibom-id")

	emitCmd.Flags().String("type", "", "Emission type ("+emission.TypeNames()+")")
	emitCmd.Flags().String("agent-id", "", "Agent ID")
	emitCmd.Flags().String("name", "", "Component name")
	emitCmd.Flags().String("version", "", "Component version")
	emitCmd.Flags().String("provider", "", "Component provider")
	_ = emitCmd.MarkFlagRequired("type")
	_ = emitCmd.MarkFlagRequired("agent-id")
	_ = emitCmd.MarkFlagRequired("name")

	exportCmd.Flags().String("path", "/tmp/emissions.json", "Destination path on the server")

	aibomCmd.Flags().String("agent-id", "", "Agent ID")
	aibomCmd.Flags().StringP("output", "o", "", "Write the document to a local file")
	_ = aibomCmd.MarkFlagRequired("agent-id")

	deliveriesCmd.Flags().String("aibom-id", "", "Filter by AIBOM")
	deliveriesCmd.Flags().String("status", "", "Filter by status (sent, failed)")
	deliveriesCmd.Flags().Int("limit", 50, "Maximum rows")

	rootCmd.AddCommand(healthCmd, observeCmd, summaryCmd, listCmd, publishCmd,
		emitCmd, exportCmd, aibomCmd, deliveriesCmd)
}

func runHealth(cmd *cobra.Command, args []string) error {
	c, err := newAPIClient()
	if err != nil {
		return err
	}
	var out struct {
		Status             string `json:"status"`
		EmissionsCollected int    `json:"emissions_collected"`
	}
	w := cmd.OutOrStdout()
	if err := c.call(cmd.Context(), http.MethodGet, "health", nil, nil, &out); err != nil {
		printFail(w, "Health check failed: %v", err)
		return err
	}
	if jsonOutput {
		return printJSON(w, out)
	}
	printOK(w, "Emitter is healthy")
	fmt.Fprintf(w, "  Emissions collected: %d\n", out.EmissionsCollected)
	return nil
}

func runObserve(cmd *cobra.Command, args []string) error {
	agentID, _ := cmd.Flags().GetString("agent-id")
	limit, _ := cmd.Flags().GetInt("limit")
	c, err := newAPIClient()
	if err != nil {
		return err
	}
	var out struct {
		AgentID            string `json:"agent_id"`
		EmissionsGenerated int    `json:"emissions_generated"`
		TotalCollected     int    `json:"total_collected"`
	}
	q := url.Values{"agent_id": {agentID}, "limit": {strconv.Itoa(limit)}}
	if err := c.call(cmd.Context(), http.MethodPost, "observe", q, nil, &out); err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	if jsonOutput {
		return printJSON(w, out)
	}
	printOK(w, "Observed %d emissions from %s", out.EmissionsGenerated, agentID)
	fmt.Fprintf(w, "  Total collected: %d\n", out.TotalCollected)
	return nil
}

func runSummary(cmd *cobra.Command, args []string) error {
	agentID, _ := cmd.Flags().GetString("agent-id")
	c, err := newAPIClient()
	if err != nil {
		return err
	}
	var s emission.Summary
	if err := c.call(cmd.Context(), http.MethodGet, "summary/"+url.PathEscape(agentID), nil, nil, &s); err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	if jsonOutput {
		return printJSON(w, s)
	}
	fmt.Fprintf(w, "Emissions for %s\n", agentID)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "METRIC\tVALUE")
	fmt.Fprintf(tw, "Total Emissions\t%d\n", s.TotalEmissions)
	fmt.Fprintf(tw, "Unique Models\t%d\n", len(s.UniqueModels))
	fmt.Fprintf(tw, "Unique Tools\t%d\n", len(s.UniqueTools))
	fmt.Fprintf(tw, "Unique Data Sources\t%d\n", len(s.UniqueDataSources))
	return tw.Flush()
}

func runList(cmd *cobra.Command, args []string) error {
	agentID, _ := cmd.Flags().GetString("agent-id")
	typ, _ := cmd.Flags().GetString("type")
	c, err := newAPIClient()
	if err != nil {
		return err
	}
	q := url.Values{}
	if agentID != "" {
		q.Set("agent_id", agentID)
	}
	if typ != "" {
		q.Set("emission_type", typ)
	}
	var out struct {
		Count     int                 `json:"count"`
		Emissions []emission.Emission `json:"emissions"`
	}
	if err := c.call(cmd.Context(), http.MethodGet, "emissions", q, nil, &out); err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	if jsonOutput {
		return printJSON(w, out)
	}
	fmt.Fprintf(w, "Found %d emissions\n", out.Count)
	if out.Count == 0 {
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTYPE\tAGENT\tCOMPONENT\tVERSION\tPROVIDER")
	for _, e := range out.Emissions {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			e.ID, e.Type, e.AgentID, e.ComponentName, e.ComponentVersion, e.Provider)
	}
	return tw.Flush()
}

func runPublish(cmd *cobra.Command, args []string) error {
	targetID, _ := cmd.Flags().GetString("aibom-id")
	agentID, _ := cmd.Flags().GetString("agent-id")
	c, err := newAPIClient()
	if err != nil {
		return err
	}
	q := url.Values{"aibom_id": {targetID}}
	if agentID != "" {
		q.Set("agent_id", agentID)
	}
	var r publisher.Result
	if err := c.call(cmd.Context(), http.MethodPost, "publish", q, nil, &r); err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	if jsonOutput {
		return printJSON(w, r)
	}
	printOK(w, "Published %d components", r.Count)
	for _, f := range r.Failures {
		printFail(w, "%s: %s", f.EmissionID, f.Error)
	}
	return nil
}

func runEmit(cmd *cobra.Command, args []string) error {
	body := map[string]string{}
	for flag, field := range map[string]string{
		"type":     "emission_type",
		"agent-id": "agent_id",
		"name":     "component_name",
		"version":  "component_version",
		"provider": "provider",
	} {
		v, _ := cmd.Flags().GetString(flag)
		body[field] = v
	}
	c, err := newAPIClient()
	if err != nil {
		return err
	}
	var e emission.Emission
	if err := c.call(cmd.Context(), http.MethodPost, "emit", nil, body, &e); err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	if jsonOutput {
		return printJSON(w, e)
	}
	printOK(w, "Recorded %s %s for %s (%s)", e.Type, e.ComponentName, e.AgentID, e.ID)
	return nil
}

func runExport(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("path")
	c, err := newAPIClient()
	if err != nil {
		return err
	}
	var out struct {
		Exported bool   `json:"exported"`
		Filepath string `json:"filepath"`
		Count    int    `json:"count"`
	}
	if err := c.call(cmd.Context(), http.MethodPost, "export", url.Values{"filepath": {path}}, nil, &out); err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	if jsonOutput {
		return printJSON(w, out)
	}
	printOK(w, "Exported %d emissions to %s", out.Count, out.Filepath)
	return nil
}

func runAIBOM(cmd *cobra.Command, args []string) error {
	agentID, _ := cmd.Flags().GetString("agent-id")
	output, _ := cmd.Flags().GetString("output")
	c, err := newAPIClient()
	if err != nil {
		return err
	}
	var doc json.RawMessage
	if err := c.call(cmd.Context(), http.MethodGet, "aibom/"+url.PathEscape(agentID), nil, nil, &doc); err != nil {
		return err
	}
	if output == "" {
		return printJSON(cmd.OutOrStdout(), doc)
	}
	var buf strings.Builder
	if err := printJSON(&buf, doc); err != nil {
		return err
	}
	if err := os.WriteFile(output, []byte(buf.String()), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", output, err)
	}
	printOK(cmd.OutOrStdout(), "Wrote AIBOM for %s to %s", agentID, output)
	return nil
}

func runDeliveries(cmd *cobra.Command, args []string) error {
	targetID, _ := cmd.Flags().GetString("aibom-id")
	status, _ := cmd.Flags().GetString("status")
	limit, _ := cmd.Flags().GetInt("limit")
	c, err := newAPIClient()
	if err != nil {
		return err
	}
	q := url.Values{"limit": {strconv.Itoa(limit)}}
	if targetID != "" {
		q.Set("aibom_id", targetID)
	}
	if status != "" {
		q.Set("status", status)
	}
	var out struct {
		Count      int `json:"count"`
		Deliveries []struct {
			EmissionID    string `json:"emission_id"`
			AIBOMID       string `json:"aibom_id"`
			ComponentType string `json:"component_type"`
			Name          string `json:"name"`
			Status        string `json:"status"`
			ErrorText     string `json:"error_text"`
			CreatedAt     string `json:"created_at"`
		} `json:"deliveries"`
	}
	if err := c.call(cmd.Context(), http.MethodGet, "deliveries", q, nil, &out); err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	if jsonOutput {
		return printJSON(w, out)
	}
	fmt.Fprintf(w, "Found %d deliveries\n", out.Count)
	if out.Count == 0 {
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tAIBOM\tEMISSION\tTYPE\tNAME\tSTATUS\tERROR")
	for _, d := range out.Deliveries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			d.CreatedAt, d.AIBOMID, d.EmissionID, d.ComponentType, d.Name, d.Status, d.ErrorText)
	}
	return tw.Flush()
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
