package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"go.uber.org/multierr"

	"blcbus-go/drivers/blc"
)

type DetectCommand struct {
	BusOptions
	Verbose bool `long:"verbose" short:"v" description:"Print per-slot probe errors"`
}

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

func (c *DetectCommand) Execute(args []string) error {
	s, err := c.open()
	if err != nil {
		return err
	}
	defer s.close()

	dev := blc.New(s.owner, s.cfg.Motors, blc.Config{})
	rep, err := dev.Detect()
	if err != nil {
		return err
	}

	fmt.Println(headerStyle.Render("BLC bus " + busLabel(c.BusOptions, s)))
	fmt.Println()
	fmt.Println(slotTable(dev.Snapshot()))
	fmt.Println()
	fmt.Println(summary(rep))

	if c.Verbose {
		for _, e := range multierr.Errors(rep.ProbeErr) {
			fmt.Println(dimStyle.Render("  " + e.Error()))
		}
	}
	return nil
}

func busLabel(o BusOptions, s *session) string {
	if o.Sim {
		return fmt.Sprintf("sim (%d x %s)", o.SimN, o.SimGen)
	}
	return fmt.Sprintf("%s @ %d Hz", s.cfg.Bus.Name, s.cfg.Bus.Hz)
}

func slotTable(sn blc.Snapshot) string {
	cell := lipgloss.NewStyle().Padding(0, 1)
	rows := make([][]string, 0, blc.MaxMotors)
	for slot := 0; slot < blc.MaxMotors; slot++ {
		st := sn.Status[slot]
		row := []string{
			fmt.Sprint(slot),
			fmt.Sprintf("0x%02x", blc.Address(slot)),
			"-", "", "", "", "",
		}
		if sn.IsPresent(slot) {
			row[2] = st.Code.String()
			row[3] = fmt.Sprintf("%d.%d A", st.DeciAmps()/10, st.DeciAmps()%10)
			row[4] = fmt.Sprintf("%d.%d V", st.DeciVolts()/10, st.DeciVolts()%10)
			if c, ok := st.TemperatureC(sn.Features); ok {
				row[5] = fmt.Sprintf("%d °C", c)
			}
			if maj, minor, ok := st.Version(sn.Features); ok {
				row[6] = fmt.Sprintf("%d.%d", maj, minor)
			}
		}
		rows = append(rows, row)
	}

	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		Headers("Slot", "Addr", "Status", "Current", "Voltage", "Temp", "FW").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle.Padding(0, 1)
			case col == 2 && row >= 0 && !sn.IsPresent(row):
				return dimStyle.Padding(0, 1)
			case col == 2:
				return successStyle.Padding(0, 1)
			default:
				return cell
			}
		}).
		Render()
}

func summary(rep blc.Report) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "reference %s, width %d byte(s), expected %d\n",
		rep.Generation(), rep.Width, rep.Expected)
	if f := rep.Features.Names(); len(f) > 0 {
		fmt.Fprintf(&sb, "features  %s\n", strings.Join(f, ", "))
	}
	if rep.Errors == 0 {
		sb.WriteString(successStyle.Render("population ok"))
	} else {
		sb.WriteString(warnStyle.Render("errors    " + strings.Join(rep.Errors.Names(), ", ")))
	}
	return sb.String()
}
