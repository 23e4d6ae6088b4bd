package notify

import (
	"fmt"
	"strings"
)

const subject = "PrintOps production alert"

// Text 渲染纯文本告警正文，Slack/Discord/邮件共用
func Text(p Payload) string {
	var b strings.Builder
	if len(p.LowStock) > 0 {
		fmt.Fprintf(&b, "Low stock (%d):\n", len(p.LowStock))
		for _, f := range p.LowStock {
			fmt.Fprintf(&b, "- %s %s: %s%s left (threshold %s%s)\n",
				f.Material, f.Color, f.CurrentAmount.String(), f.Unit, f.Threshold.String(), f.Unit)
		}
	}
	if len(p.PrinterIssues) > 0 {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "Printer issues (%d):\n", len(p.PrinterIssues))
		for _, pr := range p.PrinterIssues {
			fmt.Fprintf(&b, "- %s: %s\n", pr.Name, pr.Status)
		}
	}
	return b.String()
}

func slackBody(p Payload) map[string]interface{} {
	return map[string]interface{}{
		"text": "*" + subject + "*\n" + Text(p),
	}
}

func discordBody(p Payload) map[string]interface{} {
	return map[string]interface{}{
		"username": "PrintOps",
		"content":  "**" + subject + "**\n" + Text(p),
	}
}
