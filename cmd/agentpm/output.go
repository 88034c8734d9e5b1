package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"

	"agentpm/internal/orchestrator"
	"agentpm/internal/shared/model"
)

// printJSON 以缩进 JSON 输出（--json）
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// truncate 折叠空白并按字符数截断，用于表格单元格
func truncate(s string, n int) string {
	r := []rune(strings.Join(strings.Fields(s), " "))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n-3]) + "..."
}

// printOutcome 输出一次 start / continue 的结果
func printOutcome(out *orchestrator.PhaseOutcome) error {
	if jsonOutput {
		return printJSON(out)
	}
	fmt.Printf("conversation %s (%s): phase %s, status %s\n", out.ConversationID, out.Kind, out.Phase, out.Status)
	for _, t := range out.Transitions {
		fmt.Printf("  %s -> %s\n", t.From, t.To)
	}

	if len(out.Messages) > 0 {
		tw := table.NewWriter()
		tw.SetOutputMirror(os.Stdout)
		tw.AppendHeader(table.Row{"Specialist", "Message"})
		for _, m := range out.Messages {
			tw.AppendRow(table.Row{m.AgentID, truncate(m.Content, 100)})
		}
		tw.Render()
	}
	if len(out.Documents) > 0 {
		tw := table.NewWriter()
		tw.SetOutputMirror(os.Stdout)
		tw.AppendHeader(table.Row{"Document", "Status", "Words", "Quality", "Passed", "Error"})
		for _, d := range out.Documents {
			tw.AppendRow(table.Row{d.Kind, d.Status, d.Metadata.WordCount,
				fmt.Sprintf("%.1f", d.Metadata.QualityScore), d.Metadata.ValidationPassed, d.Error})
		}
		tw.Render()
	}
	return nil
}

func printStatus(st *orchestrator.StatusView) error {
	if jsonOutput {
		return printJSON(st)
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendRows([]table.Row{
		{"Conversation", st.ConversationID},
		{"Kind", st.Kind},
		{"Phase", st.Phase},
		{"Status", st.Status},
		{"Source", st.Source},
		{"Consulted", strings.Join(st.AgentsConsulted, ", ")},
		{"Documents", strings.Join(st.DocumentsGenerated, ", ")},
		{"Questions answered", st.QuestionsAnswered},
		{"Messages", st.MessageCount},
		{"Invocations / errors", fmt.Sprintf("%d / %d", st.Counters.AgentInvocations, st.Counters.Errors)},
		{"Token usage", st.Counters.TokenUsage},
		{"Next specialist", st.NextAgent},
		{"Updated", st.UpdatedAt.Format("2006-01-02 15:04:05")},
	})
	tw.Render()
	return nil
}

func printCheckpoints(list []int64) error {
	if jsonOutput {
		return printJSON(list)
	}
	for _, ts := range list {
		fmt.Println(ts)
	}
	return nil
}

func printDocuments(docs []*model.StoredDocument) error {
	if jsonOutput {
		return printJSON(docs)
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"ID", "Kind", "Final", "Words", "Quality", "Passed", "Updated"})
	for _, d := range docs {
		tw.AppendRow(table.Row{d.ID, d.Kind, d.Final, d.Metadata.WordCount,
			fmt.Sprintf("%.1f", d.Metadata.QualityScore), d.Metadata.ValidationPassed,
			d.UpdatedAt.Format("2006-01-02 15:04:05")})
	}
	tw.Render()
	return nil
}
