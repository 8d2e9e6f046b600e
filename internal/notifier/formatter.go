package notifier

import (
	"fmt"
	"html"
	"math"
	"strings"
	"time"

	"MarketHarvest/internal/calculator"
	"MarketHarvest/internal/model"
	"MarketHarvest/internal/recorder"
)

// FormatHealthReport formats a news pipeline health report.
func FormatHealthReport(r *model.HealthReport) string {
	var b strings.Builder

	status := "✅ 正常"
	if !r.Healthy() {
		status = "❌ 异常"
	} else if len(r.Warnings) > 0 {
		status = "⚠️ 警告"
	}
	b.WriteString(fmt.Sprintf("📰 <b>新闻采集状态</b> | %s\n", status))
	b.WriteString(fmt.Sprintf("检查时间: %s\n\n", r.CheckedAt.Format("2006-01-02 15:04:05")))

	alive := "运行中"
	if !r.SchedulerAlive {
		alive = "已停止"
	}
	b.WriteString(fmt.Sprintf("调度器: %s", alive))
	if r.SchedulerAlive && r.SchedulerInterval > 0 {
		b.WriteString(fmt.Sprintf(" (每 %s)", r.SchedulerInterval))
	}
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("连续失败: %d/%d\n", r.ConsecutiveFailures, r.MaxFailures))
	if r.LastSuccess.IsZero() {
		b.WriteString("上次成功: 无\n")
	} else {
		b.WriteString(fmt.Sprintf("上次成功: %s\n", r.LastSuccess.Format("2006-01-02 15:04:05")))
	}
	b.WriteString(fmt.Sprintf("哈希缓存: %d\n", r.HashCount))

	if len(r.Files) > 0 {
		b.WriteString("\n📁 <b>最近文件:</b>\n")
		for _, f := range r.Files {
			if f.Err != "" {
				b.WriteString(fmt.Sprintf("  %s: 读取失败 (%s)\n", f.Name, html.EscapeString(f.Err)))
				continue
			}
			b.WriteString(fmt.Sprintf("  %s: %d 条, %.1f KB, 最新 %s\n",
				f.Name, f.Items, float64(f.Size)/1024, f.LatestFetch))
		}
	}

	writeList(&b, "🚨 <b>问题:</b>", r.Issues)
	writeList(&b, "⚠️ <b>警告:</b>", r.Warnings)
	writeList(&b, "💡 <b>建议:</b>", r.Recommendations)
	return b.String()
}

func writeList(b *strings.Builder, header string, lines []string) {
	if len(lines) == 0 {
		return
	}
	b.WriteString("\n" + header + "\n")
	for _, l := range lines {
		b.WriteString("  • " + html.EscapeString(l) + "\n")
	}
}

// FormatQuotes formats the last n records of a series.
func FormatQuotes(s *model.PriceSeries, n int) string {
	if !s.Available() {
		return fmt.Sprintf("❌ %s (%s) 暂无行情数据", html.EscapeString(s.Code), s.Market)
	}
	var b strings.Builder
	b.WriteString(fmt.Sprintf("📈 <b>%s</b> (%s) | 来源 %s\n\n", html.EscapeString(s.Code), s.Market, s.Source))
	b.WriteString("<pre>")
	b.WriteString(fmt.Sprintf("%-10s %10s %10s %8s\n", "日期", "收盘", "成交量", "涨跌%"))
	for _, r := range s.Last(n) {
		b.WriteString(fmt.Sprintf("%-10s %10.2f %10d %+8.2f\n",
			r.Date.Format(time.DateOnly), r.Close, r.Volume, r.PercentChange))
	}
	b.WriteString("</pre>")

	if sum, err := calculator.Summarize(s.Records); err == nil {
		b.WriteString(fmt.Sprintf("\nMA5 %s | MA20 %s | RSI14 %s\n", figure(sum.MA5), figure(sum.MA20), figure(sum.RSI14)))
		b.WriteString(fmt.Sprintf("区间 %.2f - %.2f | 位置 %.0f%%", sum.Low, sum.High, sum.Position*100))
	}
	return b.String()
}

func figure(v float64) string {
	if math.IsNaN(v) {
		return "-"
	}
	return fmt.Sprintf("%.2f", v)
}

// FormatNews formats news items, newest first as given.
func FormatNews(items []model.NewsItem) string {
	if len(items) == 0 {
		return "📭 暂无新闻"
	}
	var b strings.Builder
	b.WriteString(fmt.Sprintf("📰 <b>最新快讯</b> (%d)\n", len(items)))
	for _, it := range items {
		b.WriteString("\n<b>" + html.EscapeString(it.Datetime) + "</b>")
		if it.Title != "" {
			b.WriteString(" " + html.EscapeString(it.Title))
		}
		b.WriteString("\n" + html.EscapeString(clip(it.Content, 200)) + "\n")
	}
	return b.String()
}

// FormatCircuitAlert is sent once when news ingestion stops retrying.
func FormatCircuitAlert(failures, maxFailures int) string {
	return fmt.Sprintf("🚨 <b>新闻采集熔断</b>\n\n连续失败 %d/%d 次, 已停止抓取。\n修复后发送 /reset 恢复。",
		failures, maxFailures)
}

// FormatNewsCycles lists recorded ingestion cycles, newest first.
func FormatNewsCycles(events []recorder.NewsCycleEvent) string {
	if len(events) == 0 {
		return "📭 暂无采集记录"
	}
	var b strings.Builder
	b.WriteString("🗂 <b>最近采集</b>\n\n")
	for _, e := range events {
		b.WriteString(fmt.Sprintf("%s %-12s 获取%d 新增%d 重复%d 尝试%d\n",
			e.At.Format("01-02 15:04:05"), e.Outcome, e.Fetched, e.Saved, e.Duplicates, e.Attempts))
	}
	return b.String()
}
