package monitor

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jsjperu/wha-relay/pkg/relayclient"
)

type fakeSource struct {
	list         []relayclient.ClientInfo
	listErr      error
	disconnected []string
}

func (f *fakeSource) ListClients(context.Context) (*relayclient.ClientList, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return &relayclient.ClientList{Count: len(f.list), Clients: f.list}, nil
}

func (f *fakeSource) Disconnect(_ context.Context, socketID, _ string) (string, error) {
	f.disconnected = append(f.disconnected, socketID)
	return "Desconectados 1 clientes.", nil
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	return next.(Model), cmd
}

func sampleClients() []relayclient.ClientInfo {
	now := time.Now()
	return []relayclient.ClientInfo{
		{ID: "c1", RUC: "20123456789", ConnectedAt: now.Add(-time.Hour), Address: "10.0.0.1"},
		{ID: "c2", RUC: anonymousLabel, ConnectedAt: now.Add(-time.Minute), Address: "10.0.0.2"},
		{ID: "c3", RUC: "20987654321", ConnectedAt: now, Address: "10.0.0.3"},
	}
}

func TestModel_FetchPopulatesTable(t *testing.T) {
	src := &fakeSource{list: sampleClients()}
	m := NewModel(src, "http://localhost:3000", time.Second)

	m, _ = update(t, m, m.fetch()())
	if len(m.clients.items) != 3 {
		t.Fatalf("items = %d, want 3", len(m.clients.items))
	}
	if m.clients.admitted() != 2 {
		t.Errorf("admitted = %d, want 2", m.clients.admitted())
	}

	view := m.View()
	for _, want := range []string{"20123456789", anonymousLabel, "Sessions: 2"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

func TestModel_Navigation(t *testing.T) {
	m := NewModel(&fakeSource{}, "", time.Second)
	m, _ = update(t, m, clientsMsg{list: &relayclient.ClientList{Clients: sampleClients()}})

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyDown})
	m, _ = update(t, m, runes("j"))
	m, _ = update(t, m, runes("j")) // clamps at the last row
	if m.clients.cursor != 2 {
		t.Errorf("cursor = %d, want 2", m.clients.cursor)
	}
	m, _ = update(t, m, runes("g"))
	if m.clients.cursor != 0 {
		t.Errorf("cursor after g = %d, want 0", m.clients.cursor)
	}
	m, _ = update(t, m, runes("G"))
	if m.clients.cursor != 2 {
		t.Errorf("cursor after G = %d, want 2", m.clients.cursor)
	}
}

func TestModel_CursorFollowsConnectionAcrossRefresh(t *testing.T) {
	m := NewModel(&fakeSource{}, "", time.Second)
	clients := sampleClients()
	m, _ = update(t, m, clientsMsg{list: &relayclient.ClientList{Clients: clients}})
	m, _ = update(t, m, runes("G")) // c3

	// c1 left; c3 is now at index 1.
	m, _ = update(t, m, clientsMsg{list: &relayclient.ClientList{Clients: clients[1:]}})
	if c, _ := m.clients.selected(); c.ID != "c3" {
		t.Errorf("selected = %q, want c3", c.ID)
	}
}

func TestModel_DisconnectRequiresConfirmation(t *testing.T) {
	src := &fakeSource{list: sampleClients()}
	m := NewModel(src, "", time.Second)
	m, _ = update(t, m, m.fetch()())

	m, cmd := update(t, m, runes("x"))
	if cmd != nil || m.confirm == nil || m.confirm.ID != "c1" {
		t.Fatalf("x should ask for confirmation, confirm = %+v", m.confirm)
	}

	m, _ = update(t, m, runes("n"))
	if m.confirm != nil {
		t.Fatal("n should cancel")
	}
	if len(src.disconnected) != 0 {
		t.Fatal("cancel must not disconnect")
	}

	m, _ = update(t, m, runes("x"))
	m, cmd = update(t, m, runes("y"))
	if cmd == nil {
		t.Fatal("confirm should return a disconnect command")
	}
	m, _ = update(t, m, cmd())
	if len(src.disconnected) != 1 || src.disconnected[0] != "c1" {
		t.Errorf("disconnected = %v", src.disconnected)
	}
	if m.notice != "Desconectados 1 clientes." {
		t.Errorf("notice = %q", m.notice)
	}
}

func TestModel_FetchErrorKeepsTable(t *testing.T) {
	src := &fakeSource{list: sampleClients()}
	m := NewModel(src, "", time.Second)
	m, _ = update(t, m, m.fetch()())

	src.listErr = errors.New("relay unreachable")
	m, _ = update(t, m, m.fetch()())
	if len(m.clients.items) != 3 {
		t.Errorf("items = %d, want previous 3", len(m.clients.items))
	}
	if !strings.Contains(m.View(), "relay unreachable") {
		t.Error("view should show the fetch error")
	}
}

func TestModel_Quit(t *testing.T) {
	m := NewModel(&fakeSource{}, "", time.Second)
	_, cmd := update(t, m, runes("q"))
	if cmd == nil {
		t.Fatal("q should quit")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("q did not return tea.Quit")
	}
}

func TestFormatAge(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	cases := map[time.Duration]string{
		30 * time.Second:            "30s",
		5 * time.Minute:             "5m",
		2*time.Hour + 3*time.Minute: "2h3m",
	}
	for d, want := range cases {
		if got := formatAge(now, now.Add(-d)); got != want {
			t.Errorf("formatAge(%v) = %q, want %q", d, got, want)
		}
	}
	if formatAge(now, time.Time{}) != "-" {
		t.Error("zero time should render as -")
	}
}
