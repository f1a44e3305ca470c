package tui

import (
	"fmt"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/kf7aae/burstprobe/rx"
)

type BurstTableData struct {
	tview.TableContentReadOnly
}

type LockTableData struct {
	tview.TableContentReadOnly
}

// Update is one scan pass over the capture, pushed by the monitor loop.
type Update struct {
	Source  string
	Results []*rx.Result
	Stats   rx.ScanStats
}

var current Update

func (l *LockTableData) GetRowCount() int {
	return 3
}

func (l *LockTableData) GetColumnCount() int {
	return 2
}

func (l *LockTableData) GetCell(row, column int) *tview.TableCell {
	switch row {
	case 0:
		if column == 0 {
			return tview.NewTableCell("Burst lock:")
		}

		locked := current.Stats.LockedCount > 0
		color := tcell.ColorGreen
		if !locked {
			color = tcell.ColorRed
		}
		return tview.NewTableCell(fmt.Sprintf("%v", locked)).SetTextColor(color)
	case 1:
		if column == 0 {
			return tview.NewTableCell("Bursts locked:")
		}

		return tview.NewTableCell(fmt.Sprintf("%d/%d", current.Stats.LockedCount, current.Stats.BurstCount))
	case 2:
		if column == 0 {
			return tview.NewTableCell("CFO mean:")
		}

		return tview.NewTableCell(fmt.Sprintf("%.1f Hz ± %.1f", current.Stats.CFOMeanHz, current.Stats.CFOStdHz))
	}
	return tview.NewTableCell("ERROR")
}

func (d *BurstTableData) GetRowCount() int {
	return len(current.Results) + 1
}

func (d *BurstTableData) GetColumnCount() int {
	return 5
}

func (d *BurstTableData) GetCell(row, column int) *tview.TableCell {
	if row == 0 {
		switch column {
		case 0:
			return tview.NewTableCell("[lightskyblue]Start Sample ")
		case 1:
			return tview.NewTableCell("[white]Peak ")
		case 2:
			return tview.NewTableCell("[white]CFO (Hz) ")
		case 3:
			return tview.NewTableCell("[green]EVM % ")
		case 4:
			return tview.NewTableCell("[red]BER")
		}
		return tview.NewTableCell("ERROR")
	}

	res := current.Results[row-1]
	rec := &res.Record
	switch column {
	case 0:
		return tview.NewTableCell(fmt.Sprintf("[lightskyblue]%d", rec.StartSample))
	case 1:
		if !rec.Locked {
			return tview.NewTableCell("[red]no lock")
		}
		return tview.NewTableCell(fmt.Sprintf("[green]%.3f", rec.PeakMagnitude))
	case 2:
		return tview.NewTableCell(fmt.Sprintf("[white]%.1f", rec.TotalCFOHz()))
	case 3:
		if res.Metrics == nil {
			return tview.NewTableCell("-")
		}
		return tview.NewTableCell(fmt.Sprintf("[green]%.2f", res.Metrics.EVMPercent))
	case 4:
		if res.Metrics == nil || !res.Metrics.HasBER() {
			return tview.NewTableCell("n/a")
		}
		return tview.NewTableCell(fmt.Sprintf("[red]%.2e", res.Metrics.BER))
	}
	return tview.NewTableCell("ERROR")
}
