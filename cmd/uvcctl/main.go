// Keyboard-driven control panel for UVC webcams. Pick a camera, then
// adjust its controls with the arrow keys.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/kevmo314/go-uvcctl"
	"github.com/kevmo314/go-uvcctl/pkg/controls"
)

type controlRow struct {
	id    string
	spec  controls.Spec
	info  uvcctl.Info
	value controls.Value
}

type panel struct {
	app     *tview.Application
	session *uvcctl.Session

	table  *tview.Table
	status *tview.TextView
	input  *tview.InputField
	layout *tview.Flex

	ids       []string
	rows      []controlRow
	stepScale map[string]int32
	pairAxis  map[string]int
	typing    bool
}

func main() {
	listOnly := flag.Bool("list", false, "list discovered UVC webcams and exit")
	flag.Parse()

	cameras, err := uvcctl.ListCameras()
	if err != nil {
		log.Fatalf("enumerate cameras: %s", err)
	}
	defer func() {
		for _, cam := range cameras {
			cam.Release()
		}
	}()

	if *listOnly {
		os.Exit(listCameras(cameras))
	}
	if len(cameras) == 0 {
		fmt.Println("No UVC webcams found")
		os.Exit(1)
	}

	index := -1
	if flag.NArg() > 0 {
		index, err = strconv.Atoi(flag.Arg(0))
		if err != nil || index < 0 || index >= len(cameras) {
			fmt.Fprintf(os.Stderr, "invalid camera index %q\n", flag.Arg(0))
			os.Exit(1)
		}
	}

	if err := run(cameras, index); err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", err)
		os.Exit(1)
	}
}

func listCameras(cameras []*uvcctl.Descriptor) int {
	if len(cameras) == 0 {
		fmt.Println("No UVC webcams found")
		return 1
	}
	for i, cam := range cameras {
		fmt.Println(uvcctl.FormatCamera(cam, i))
	}
	return 0
}

// run drives the picker/panel loop. Returning to the picker closes the
// session so another tool can claim the interface in the meantime.
func run(cameras []*uvcctl.Descriptor, index int) error {
	for {
		if index < 0 {
			picked, ok := pickCamera(cameras)
			if !ok {
				return nil
			}
			index = picked
		}

		session := uvcctl.NewSession(cameras[index])
		if err := session.Open(); err != nil {
			return fmt.Errorf("open %s: %w", cameras[index].DisplayName(), err)
		}
		back, err := controlPanel(session)
		session.Close()
		if err != nil {
			return err
		}
		if !back {
			return nil
		}
		index = -1
	}
}

func pickCamera(cameras []*uvcctl.Descriptor) (int, bool) {
	app := tview.NewApplication()
	picked, ok := -1, false

	list := tview.NewList().ShowSecondaryText(false)
	list.SetBorder(true).SetTitle("Select Camera (enter to open, q to quit)")
	for i, cam := range cameras {
		list.AddItem(uvcctl.FormatCamera(cam, i), "", 0, nil)
	}
	list.SetSelectedFunc(func(i int, _, _ string, _ rune) {
		picked, ok = i, true
		app.Stop()
	})
	list.SetInputCapture(func(ev *tcell.EventKey) *tcell.EventKey {
		if ev.Rune() == 'q' {
			app.Stop()
			return nil
		}
		return ev
	})

	if err := app.SetRoot(list, true).Run(); err != nil {
		return -1, false
	}
	return picked, ok
}

// controlPanel runs the adjustment UI for one open session. It returns
// back=true when the user asked for the camera picker again.
func controlPanel(session *uvcctl.Session) (back bool, err error) {
	if err := session.ForceManualMode(); err != nil {
		return false, fmt.Errorf("force manual exposure: %w", err)
	}
	ids, err := session.SupportedControlIDs()
	if err != nil {
		return false, err
	}
	if len(ids) == 0 {
		return false, fmt.Errorf("no supported controls on this camera")
	}

	p := &panel{
		app:       tview.NewApplication(),
		session:   session,
		ids:       ids,
		stepScale: make(map[string]int32, len(ids)),
		pairAxis:  make(map[string]int, len(ids)),
	}
	for _, id := range ids {
		p.stepScale[id] = 1
	}

	p.table = tview.NewTable().SetSelectable(true, false)
	p.table.SetBorder(true).SetTitle("Controls")

	p.status = tview.NewTextView()
	p.status.SetBorder(true).SetTitle("Status")
	fmt.Fprint(p.status, "up/down select | left/right adjust | [ ] step | a axis | v type value | r refresh | b cameras | q quit")

	p.input = tview.NewInputField().SetLabel("value: ").SetFieldWidth(24)
	p.layout = tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(p.table, 0, 1, true).
		AddItem(p.status, 3, 0, false)

	if err := p.refresh(); err != nil {
		return false, err
	}
	p.render()

	backRequested := false
	p.table.SetInputCapture(func(ev *tcell.EventKey) *tcell.EventKey {
		switch {
		case ev.Rune() == 'q':
			p.app.Stop()
			return nil
		case ev.Rune() == 'b':
			backRequested = true
			p.app.Stop()
			return nil
		case ev.Key() == tcell.KeyLeft:
			p.adjust(-1)
			return nil
		case ev.Key() == tcell.KeyRight:
			p.adjust(1)
			return nil
		case ev.Rune() == '[':
			p.scaleStep(false)
			return nil
		case ev.Rune() == ']':
			p.scaleStep(true)
			return nil
		case ev.Rune() == 'a':
			p.toggleAxis()
			return nil
		case ev.Rune() == 'v':
			p.beginInput()
			return nil
		case ev.Rune() == 'r':
			p.reload("refreshed")
			return nil
		}
		return ev
	})

	if err := p.app.SetRoot(p.layout, true).Run(); err != nil {
		return false, err
	}
	return backRequested, nil
}

func (p *panel) refresh() error {
	rows := make([]controlRow, 0, len(p.ids))
	for _, id := range p.ids {
		spec, err := p.session.ControlSpec(id)
		if err != nil {
			return err
		}
		info, err := p.session.ControlInfo(id)
		if err != nil {
			return err
		}
		value, err := p.session.GetControl(id)
		if err != nil {
			return err
		}
		rows = append(rows, controlRow{id: id, spec: spec, info: info, value: value})
	}
	p.rows = rows
	return nil
}

func (p *panel) render() {
	selected, _ := p.table.GetSelection()
	p.table.Clear()
	for i, row := range p.rows {
		p.table.SetCell(i, 0, tview.NewTableCell(row.spec.Display).SetExpansion(1))
		p.table.SetCell(i, 1, tview.NewTableCell("value="+p.valueText(row)).SetExpansion(1))
		p.table.SetCell(i, 2, tview.NewTableCell("range="+rangeText(row.info)).SetExpansion(1))
		p.table.SetCell(i, 3, tview.NewTableCell("step="+p.stepText(row)).SetExpansion(1))
	}
	if selected >= 0 && selected < len(p.rows) {
		p.table.Select(selected, 0)
	}
}

func (p *panel) valueText(row controlRow) string {
	switch row.info.Kind {
	case controls.KindEnum:
		return row.spec.LabelFor(row.value.Int)
	case controls.KindPair:
		markers := []string{"x", "y"}
		axis := p.pairAxis[row.id]
		markers[axis] = strings.ToUpper(markers[axis])
		return fmt.Sprintf("%s (%s/%s)", row.value.String(), markers[0], markers[1])
	default:
		return row.value.String()
	}
}

func rangeText(info uvcctl.Info) string {
	switch info.Kind {
	case controls.KindBool, controls.KindEnum:
		return "-"
	case controls.KindPair:
		return fmt.Sprintf("%d..%d | %d..%d",
			info.Minimum.Pair[0], info.Maximum.Pair[0],
			info.Minimum.Pair[1], info.Maximum.Pair[1])
	default:
		return fmt.Sprintf("%d..%d", info.Minimum.Int, info.Maximum.Int)
	}
}

func (p *panel) stepText(row controlRow) string {
	switch row.info.Kind {
	case controls.KindBool, controls.KindEnum:
		return "toggle"
	case controls.KindPair:
		first, second := p.pairStep(row)
		return fmt.Sprintf("%d,%d", first, second)
	default:
		return strconv.FormatInt(int64(p.intStep(row)), 10)
	}
}

func (p *panel) intStep(row controlRow) int32 {
	base := row.info.Resolution.Int
	if base <= 0 {
		base = 1
	}
	step := base * p.stepScale[row.id]
	if step < 1 {
		return 1
	}
	return step
}

func (p *panel) pairStep(row controlRow) (int32, int32) {
	scale := p.stepScale[row.id]
	steps := [2]int32{}
	for i := 0; i < 2; i++ {
		base := row.info.Resolution.Pair[i]
		if base <= 0 {
			base = 1
		}
		steps[i] = base * scale
		if steps[i] < 1 {
			steps[i] = 1
		}
	}
	return steps[0], steps[1]
}

func (p *panel) selectedRow() *controlRow {
	i, _ := p.table.GetSelection()
	if i < 0 || i >= len(p.rows) {
		return nil
	}
	return &p.rows[i]
}

// adjust nudges the selected control: toggle for bool, cycle for enum,
// step-and-clamp for int and pair. Failures land in the status line
// instead of ending the session.
func (p *panel) adjust(direction int32) {
	row := p.selectedRow()
	if row == nil {
		return
	}

	var target controls.Value
	switch row.info.Kind {
	case controls.KindBool:
		target = controls.Bool(!row.value.Bool)
	case controls.KindEnum:
		codes := row.spec.Enum
		if len(codes) == 0 {
			return
		}
		idx := 0
		for i, ev := range codes {
			if ev.Code == row.value.Int {
				idx = i
				break
			}
		}
		idx = (idx + int(direction) + len(codes)) % len(codes)
		target = controls.Enum(codes[idx].Code)
	case controls.KindPair:
		axis := p.pairAxis[row.id]
		first, second := p.pairStep(*row)
		steps := [2]int32{first, second}
		next := row.value.Pair
		next[axis] += direction * steps[axis]
		for i := 0; i < 2; i++ {
			next[i] = clampAligned(next[i], row.info.Minimum.Pair[i], row.info.Maximum.Pair[i], row.info.Resolution.Pair[i])
		}
		target = controls.Pair(next[0], next[1])
	default:
		next := row.value.Int + direction*p.intStep(*row)
		target = controls.Int(clampAligned(next, row.info.Minimum.Int, row.info.Maximum.Int, row.info.Resolution.Int))
	}

	if _, err := p.session.SetControl(row.id, target); err != nil {
		p.setStatus(fmt.Sprintf("adjust failed: %s", err))
		return
	}
	p.reload("")
}

// clampAligned pins v into [min, max] and snaps it down onto the
// device's resolution grid anchored at min.
func clampAligned(v, min, max, res int32) int32 {
	if v < min {
		v = min
	}
	if v > max {
		v = max
	}
	if res > 0 {
		v = min + (v-min)/res*res
	}
	return v
}

func (p *panel) scaleStep(up bool) {
	row := p.selectedRow()
	if row == nil {
		return
	}
	scale := p.stepScale[row.id]
	if up {
		scale *= 2
		if scale > 4096 {
			scale = 4096
		}
	} else {
		scale /= 2
		if scale < 1 {
			scale = 1
		}
	}
	p.stepScale[row.id] = scale
	p.render()
}

func (p *panel) toggleAxis() {
	row := p.selectedRow()
	if row == nil || row.info.Kind != controls.KindPair {
		return
	}
	p.pairAxis[row.id] = 1 - p.pairAxis[row.id]
	p.render()
}

func (p *panel) beginInput() {
	row := p.selectedRow()
	if row == nil || p.typing {
		return
	}
	p.typing = true
	p.input.SetLabel(row.spec.Display + ": ").SetText("")
	p.input.SetDoneFunc(func(key tcell.Key) {
		text := p.input.GetText()
		p.endInput()
		if key != tcell.KeyEnter {
			return
		}
		target, err := parseTypedValue(row.spec, text)
		if err != nil {
			p.setStatus(fmt.Sprintf("apply failed: %s", err))
			return
		}
		if _, err := p.session.SetControl(row.id, target); err != nil {
			p.setStatus(fmt.Sprintf("apply failed: %s", err))
			return
		}
		p.reload("value applied")
	})
	p.layout.AddItem(p.input, 1, 0, false)
	p.app.SetFocus(p.input)
}

func (p *panel) endInput() {
	p.typing = false
	p.layout.RemoveItem(p.input)
	p.app.SetFocus(p.table)
}

// parseTypedValue interprets keyboard input for one control: on/off
// words for bool, label or code for enum, "x,y" for pair, a plain
// integer otherwise.
func parseTypedValue(spec controls.Spec, raw string) (controls.Value, error) {
	text := strings.ToLower(strings.TrimSpace(raw))
	if text == "" {
		return controls.Value{}, fmt.Errorf("empty value")
	}

	switch spec.Kind {
	case controls.KindBool:
		switch text {
		case "1", "true", "on", "yes":
			return controls.Bool(true), nil
		case "0", "false", "off", "no":
			return controls.Bool(false), nil
		}
		return controls.Value{}, fmt.Errorf("bool value must be on/off or 1/0")
	case controls.KindEnum:
		if code, err := strconv.ParseInt(text, 10, 32); err == nil {
			return controls.Enum(int32(code)), nil
		}
		code, ok := spec.CodeFor(text)
		if !ok {
			return controls.Value{}, fmt.Errorf("invalid enum label %q", text)
		}
		return controls.Enum(code), nil
	case controls.KindPair:
		parts := strings.Split(raw, ",")
		if len(parts) != 2 {
			return controls.Value{}, fmt.Errorf("pair value must look like x,y")
		}
		first, err := strconv.ParseInt(strings.TrimSpace(parts[0]), 10, 32)
		if err != nil {
			return controls.Value{}, err
		}
		second, err := strconv.ParseInt(strings.TrimSpace(parts[1]), 10, 32)
		if err != nil {
			return controls.Value{}, err
		}
		return controls.Pair(int32(first), int32(second)), nil
	default:
		n, err := strconv.ParseInt(text, 10, 32)
		if err != nil {
			return controls.Value{}, err
		}
		return controls.Int(int32(n)), nil
	}
}

func (p *panel) reload(status string) {
	if err := p.refresh(); err != nil {
		p.setStatus(fmt.Sprintf("refresh failed: %s", err))
		return
	}
	p.render()
	if status != "" {
		p.setStatus(status)
	}
}

func (p *panel) setStatus(line string) {
	p.status.Clear()
	fmt.Fprint(p.status, line)
}
