package tui

import (
	"github.com/charmbracelet/log"
	"github.com/gdamore/tcell/v2"
	"github.com/navidys/tvxwidgets"
	"github.com/rivo/tview"

	"github.com/kf7aae/burstprobe/config"
)

var LogOut *tview.TextView

// StartUI renders scan passes pushed on updates until the channel closes or
// the user quits. Blocks until the UI exits.
func StartUI(updates <-chan Update, tuiConf config.TuiConf) {
	app := tview.NewApplication()

	LogOut = tview.NewTextView().
		SetDynamicColors(true).
		SetRegions(true).
		SetWordWrap(true)

	burstData := &BurstTableData{}
	lockData := &LockTableData{}
	burstTable := tview.NewTable().SetContent(burstData)
	lockTable := tview.NewTable().SetContent(lockData)

	cfoPlot := tvxwidgets.NewPlot()
	cfoPlot.SetLineColor([]tcell.Color{tcell.ColorLightSkyBlue})
	cfoPlot.SetMarker(tvxwidgets.PlotMarkerBraille)

	evmGauge := tvxwidgets.NewUtilModeGauge()
	evmGauge.SetLabel("EVM:             ")
	evmGauge.SetLabelColor(tcell.ColorLightSkyBlue)
	evmGauge.SetWarnPercentage(tuiConf.EvmWarnPct)
	evmGauge.SetCritPercentage(tuiConf.EvmCritPct)
	evmGauge.SetEmptyColor(tcell.ColorBlack)
	evmGauge.SetBorder(false)

	berGauge := tvxwidgets.NewUtilModeGauge()
	berGauge.SetLabel("Bit Error Rate:  ")
	berGauge.SetLabelColor(tcell.ColorLightSkyBlue)
	berGauge.SetWarnPercentage(tuiConf.BerWarnPct)
	berGauge.SetCritPercentage(tuiConf.BerCritPct)
	berGauge.SetEmptyColor(tcell.ColorBlack)
	berGauge.SetBorder(false)

	gaugeBox := tview.NewFlex()
	gaugeBox.SetDirection(tview.FlexRow)
	gaugeBox.AddItem(evmGauge, 0, 1, false)
	gaugeBox.AddItem(berGauge, 0, 1, false)
	gaugeBox.SetTitle("Link Quality")
	gaugeBox.SetBorder(true)

	LogOut.SetChangedFunc(func() {
		LogOut.ScrollToEnd()
		app.Draw()
	})

	LogOut.SetBorder(true).SetTitle("Log Output")
	log.SetOutput(LogOut)
	burstTable.SetSelectable(false, false).SetBorder(true).SetTitle("Bursts")
	lockTable.SetSelectable(false, false).SetBorder(false)

	lockBox := tview.NewFlex().SetDirection(tview.FlexRow)
	lockBox.AddItem(tview.NewBox(), 0, 1, false)
	lockBox.AddItem(lockTable, 0, 1, false)
	lockBox.AddItem(tview.NewBox(), 0, 1, false)
	lockBox.SetBorder(true)
	lockBox.SetTitle("Receiver Status")

	cfoPlot.SetBorder(true)
	cfoPlot.SetTitle("CFO per Burst (Hz)")

	page := tview.NewFlex().SetDirection(tview.FlexColumn)

	leftCol := tview.NewFlex().SetDirection(tview.FlexRow)
	leftCol.AddItem(burstTable, 0, 3, false)
	leftCol.AddItem(lockBox, 0, 1, false)

	rightCol := tview.NewFlex().SetDirection(tview.FlexRow)
	rightCol.AddItem(gaugeBox, 0, 2, false)
	rightCol.AddItem(cfoPlot, 0, 3, false)

	if tuiConf.EnableLogOutput {
		rightCol.AddItem(LogOut, 0, 2, false)
	}

	page.AddItem(leftCol, 0, 3, false)
	page.AddItem(rightCol, 0, 4, false)

	go func() {
		for update := range updates {
			current = update

			// Gauges track the most recent locked burst.
			var cfos []float64
			for _, res := range update.Results {
				if !res.Record.Locked || res.Metrics == nil {
					continue
				}
				cfos = append(cfos, res.Record.TotalCFOHz())
				evmGauge.SetValue(res.Metrics.EVMPercent)
				if res.Metrics.HasBER() {
					berGauge.SetValue(100 * res.Metrics.BER)
				}
			}
			if len(cfos) > 1 {
				cfoPlot.SetData([][]float64{cfos})
			}

			app.Draw()
		}
		app.Stop()
	}()

	if err := app.SetRoot(page, true).EnableMouse(true).Run(); err != nil {
		log.Fatalf("Could not start UI: %v", err)
	}
}
