package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"blcbus-go/bus"
	"blcbus-go/drivers/blc"
	"blcbus-go/services/motors"
	"blcbus-go/types"
	"blcbus-go/x/mathx"
)

type MonitorCommand struct {
	BusOptions
	Step uint16 `long:"step" default:"64" description:"Setpoint change per keypress"`
}

const maxLogs = 5

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	selectedStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("11")).Padding(0, 1)
	linkStyles    = map[types.Link]lipgloss.Style{
		types.LinkUp:       lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		types.LinkDegraded: lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		types.LinkDown:     lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
	}
)

// Messages from the bus
type stateMsg types.MotorsState
type valueMsg types.MotorValue
type logMsg string

type monitorModel struct {
	conn   *bus.Connection
	states *bus.Subscription
	values *bus.Subscription
	step   uint16
	max    uint16

	state    types.MotorsState
	slots    [blc.MaxMotors]types.MotorValue
	targets  [blc.MaxMotors]uint16
	selected int
	logs     []string
	quitting bool
}

func waitForState(sub *bus.Subscription) tea.Cmd {
	return func() tea.Msg {
		m, ok := <-sub.Channel()
		if !ok {
			return nil
		}
		return stateMsg(m.Payload.(types.MotorsState))
	}
}

func waitForValue(sub *bus.Subscription) tea.Cmd {
	return func() tea.Msg {
		m, ok := <-sub.Channel()
		if !ok {
			return nil
		}
		return valueMsg(m.Payload.(types.MotorValue))
	}
}

// send issues a control request off the UI goroutine and logs the outcome.
func (m *monitorModel) send(verb string, payload any) tea.Cmd {
	conn := m.conn
	return func() tea.Msg {
		if err := request(context.Background(), conn, verb, payload); err != nil {
			return logMsg(err.Error())
		}
		return logMsg(verb + " ok")
	}
}

func (m *monitorModel) addLog(msg string) {
	m.logs = append(m.logs, time.Now().Format("15:04:05 ")+msg)
	if len(m.logs) > maxLogs {
		m.logs = m.logs[len(m.logs)-maxLogs:]
	}
}

func (m monitorModel) Init() tea.Cmd {
	return tea.Batch(waitForState(m.states), waitForValue(m.values))
}

func (m monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Sequence(m.send(motors.VerbStop, types.MotorsStop{}), tea.Quit)
		case "up", "k":
			m.selected = (m.selected + blc.MaxMotors - 1) % blc.MaxMotors
		case "down", "j":
			m.selected = (m.selected + 1) % blc.MaxMotors
		case "+", "=", "right", "l":
			cmd := m.adjust(int(m.step))
			return m, cmd
		case "-", "left", "h":
			cmd := m.adjust(-int(m.step))
			return m, cmd
		case "0", "s", " ":
			m.targets = [blc.MaxMotors]uint16{}
			return m, m.send(motors.VerbStop, types.MotorsStop{})
		case "d":
			return m, m.send(motors.VerbDetect, types.MotorsDetect{})
		case "c":
			return m, m.send(motors.VerbClearErrors, types.MotorsClearErrors{})
		}

	case stateMsg:
		m.state = types.MotorsState(msg)
		if m.state.Error != "" {
			m.addLog(m.state.Error)
		}
		return m, waitForState(m.states)

	case valueMsg:
		v := types.MotorValue(msg)
		if v.Slot >= 0 && v.Slot < blc.MaxMotors {
			m.slots[v.Slot] = v
		}
		return m, waitForValue(m.values)

	case logMsg:
		m.addLog(string(msg))
	}
	return m, nil
}

func (m *monitorModel) adjust(delta int) tea.Cmd {
	v := mathx.Clamp(int(m.targets[m.selected])+delta, 0, int(m.max))
	m.targets[m.selected] = uint16(v)
	return m.send(motors.VerbSetpoint, types.SetpointSet{Slot: m.selected, Value: uint16(v)})
}

func (m monitorModel) View() string {
	if m.quitting {
		return "Motors stopped.\n"
	}
	var sb strings.Builder

	link := linkStyles[m.state.Link].Render(string(m.state.Link))
	sb.WriteString(titleStyle.Render("BLC monitor"))
	fmt.Fprintf(&sb, "  link %s  ref %s  width %d  cycles %d  stalls %d\n\n",
		link, m.state.Reference, m.state.Width, m.state.Stats.Cycles, m.state.Stats.Stalls)

	rows := make([][]string, 0, blc.MaxMotors)
	for slot := 0; slot < blc.MaxMotors; slot++ {
		v := m.slots[slot]
		present := m.state.Present&(1<<slot) != 0
		row := []string{fmt.Sprint(slot), "-", fmt.Sprint(m.targets[slot]), "", "", "", ""}
		if present {
			row[1] = v.Code
			row[3] = fmt.Sprint(v.Setpoint)
			row[4] = fmt.Sprint(v.RPM)
			row[5] = fmt.Sprintf("%d.%d", v.DeciAmps/10, v.DeciAmps%10)
			if v.TempC != nil {
				row[6] = fmt.Sprint(*v.TempC)
			}
		}
		rows = append(rows, row)
	}
	sel := m.selected
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		Headers("Slot", "Status", "Target", "Sent", "RPM", "A", "°C").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle.Padding(0, 1)
			case row == sel:
				return selectedStyle
			default:
				return lipgloss.NewStyle().Padding(0, 1)
			}
		})
	sb.WriteString(t.Render())
	sb.WriteString("\n")

	if len(m.state.Errors) > 0 {
		sb.WriteString(warnStyle.Render("errors: " + strings.Join(m.state.Errors, ", ")))
		sb.WriteString("\n")
	}
	for _, l := range m.logs {
		sb.WriteString(dimStyle.Render(l))
		sb.WriteString("\n")
	}
	sb.WriteString(dimStyle.Render("↑/↓ slot  ←/→ setpoint  space stop  d detect  c clear  q quit"))
	return sb.String()
}

func (c *MonitorCommand) Execute(args []string) error {
	s, err := c.open()
	if err != nil {
		return err
	}
	defer s.close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b := bus.NewBus(32)
	conn := b.NewConnection("monitor")
	svc := motors.New(s.owner, s.cfg.Motors)
	if err := svc.Start(ctx, b.NewConnection("motors")); err != nil {
		return err
	}
	// stop the service (final zero cycle) before s.close shuts the bus
	defer func() {
		cancel()
		select {
		case <-svc.Done():
		case <-time.After(time.Second):
		}
	}()

	m := monitorModel{
		conn:   conn,
		states: conn.Subscribe(motors.TopicState),
		values: conn.Subscribe(bus.T("motors", "+", "value")),
		step:   c.Step,
		max:    s.cfg.Motors.MaxSetpoint,
	}
	defer conn.Disconnect()

	_, err = tea.NewProgram(m, tea.WithAltScreen()).Run()
	return err
}
