// Package tui is a terminal front end over the in-process cache. It
// renders registry snapshots and never fetches on its own; all data
// flows through the sync engine.
package tui

import (
	"context"
	"fmt"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"zapdesk/internal/cache"
	"zapdesk/internal/outbox"
	"zapdesk/internal/registry"
	intsync "zapdesk/internal/sync"
)

// App is the main TUI application shell.
type App struct {
	app      *tview.Application
	layout   *tview.Flex
	chatList *tview.List
	msgView  *tview.TextView
	composer *tview.InputField
	status   *tview.TextView

	reg    *registry.Registry
	engine *intsync.Engine
	sender *outbox.Sender

	ctx    context.Context
	cancel context.CancelFunc

	chats      []cache.Chat
	activeChat string
	unsubs     []func()
}

// NewApp creates the TUI application.
func NewApp(reg *registry.Registry, engine *intsync.Engine, sender *outbox.Sender) *App {
	ctx, cancel := context.WithCancel(context.Background())
	a := &App{
		app:      tview.NewApplication(),
		chatList: tview.NewList().ShowSecondaryText(true),
		msgView:  tview.NewTextView().SetDynamicColors(true).SetScrollable(true),
		composer: tview.NewInputField().SetLabel("> "),
		status:   tview.NewTextView().SetDynamicColors(true),
		reg:      reg,
		engine:   engine,
		sender:   sender,
		ctx:      ctx,
		cancel:   cancel,
	}

	a.chatList.SetBorder(true).SetTitle(" Chats ")
	a.msgView.SetBorder(true).SetTitle(" Messages ")
	a.status.SetText("[yellow]connecting")

	a.setupLayout()
	a.setupBindings()
	a.subscribe()

	return a
}

func (a *App) setupLayout() {
	right := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(a.msgView, 0, 1, false).
		AddItem(a.composer, 1, 0, false)

	body := tview.NewFlex().
		AddItem(a.chatList, 32, 0, true).
		AddItem(right, 0, 1, false)

	a.layout = tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(body, 0, 1, true).
		AddItem(a.status, 1, 0, false)
}

func (a *App) setupBindings() {
	a.chatList.SetSelectedFunc(func(index int, _, _ string, _ rune) {
		if index < 0 || index >= len(a.chats) {
			return
		}
		a.openChat(a.chats[index].ID)
	})

	a.composer.SetDoneFunc(func(key tcell.Key) {
		if key != tcell.KeyEnter {
			return
		}
		text := a.composer.GetText()
		if text == "" || a.activeChat == "" {
			return
		}
		a.composer.SetText("")
		if _, err := a.sender.Enqueue(a.activeChat, text); err != nil {
			a.status.SetText(fmt.Sprintf("[red]send failed: %v", err))
		}
	})

	a.app.SetInputCapture(func(ev *tcell.EventKey) *tcell.EventKey {
		switch {
		case ev.Key() == tcell.KeyCtrlC:
			a.app.Stop()
			return nil
		case ev.Key() == tcell.KeyTab:
			if a.app.GetFocus() == a.chatList {
				a.app.SetFocus(a.composer)
			} else {
				a.app.SetFocus(a.chatList)
			}
			return nil
		}
		return ev
	})
}

// subscribe wires registry keys to redraws. Callbacks arrive on engine
// goroutines, so every mutation goes through QueueUpdateDraw.
func (a *App) subscribe() {
	a.unsubs = append(a.unsubs, a.reg.Subscribe(registry.ChatList, func(_ string, snap any) {
		chats, ok := snap.([]cache.Chat)
		if !ok {
			return
		}
		a.app.QueueUpdateDraw(func() { a.renderChats(chats) })
	}))

	a.unsubs = append(a.unsubs, a.reg.Subscribe("chat:", func(key string, snap any) {
		if key != registry.ChatKey(a.activeChat) {
			return
		}
		msgs, ok := snap.([]cache.Message)
		if !ok {
			return
		}
		a.app.QueueUpdateDraw(func() { a.renderMessages(msgs) })
	}))

	a.unsubs = append(a.unsubs, a.reg.Subscribe(registry.Status, func(_ string, snap any) {
		s, ok := snap.(string)
		if !ok {
			return
		}
		a.app.QueueUpdateDraw(func() { a.renderStatus(s) })
	}))
}

func (a *App) openChat(chatID string) {
	a.activeChat = chatID
	a.engine.SetActiveChat(chatID)
	a.msgView.SetTitle(fmt.Sprintf(" %s ", chatID))

	go func() {
		ctx, cancel := context.WithTimeout(a.ctx, 15*time.Second)
		defer cancel()
		if err := a.engine.EnsureMessages(ctx, chatID); err != nil {
			a.app.QueueUpdateDraw(func() {
				a.status.SetText(fmt.Sprintf("[red]load failed: %v", err))
			})
		}
	}()
	a.app.SetFocus(a.composer)
}

func (a *App) renderChats(chats []cache.Chat) {
	a.chats = chats
	current := a.chatList.GetCurrentItem()
	a.chatList.Clear()
	for _, c := range chats {
		name := c.Name
		if name == "" {
			name = c.ID
		}
		if c.UnreadCount > 0 {
			name = fmt.Sprintf("%s (%d)", name, c.UnreadCount)
		}
		secondary := ""
		if c.LastMessage != nil {
			secondary = c.LastMessage.Body
		}
		a.chatList.AddItem(name, secondary, 0, nil)
	}
	if current >= 0 && current < len(chats) {
		a.chatList.SetCurrentItem(current)
	}
}

func (a *App) renderMessages(msgs []cache.Message) {
	a.msgView.Clear()
	for _, m := range msgs {
		who := "them"
		if m.FromMe {
			who = "me"
		}
		ts := time.UnixMilli(m.Timestamp).Format("15:04")
		fmt.Fprintf(a.msgView, "[gray]%s[-] [yellow]%s[-] %s", ts, who, tview.Escape(m.Body))
		if m.FromMe && m.Status != "" {
			fmt.Fprintf(a.msgView, " [gray](%s)[-]", m.Status)
		}
		fmt.Fprintln(a.msgView)
	}
	a.msgView.ScrollToEnd()
}

func (a *App) renderStatus(s string) {
	color := "green"
	switch s {
	case "reconnecting":
		color = "yellow"
	case "disconnected":
		color = "red"
	}
	a.status.SetText(fmt.Sprintf("[%s]%s", color, s))
}

// Run blocks until the user quits.
func (a *App) Run() error {
	go func() {
		ctx, cancel := context.WithTimeout(a.ctx, 15*time.Second)
		defer cancel()
		if err := a.engine.EnsureChats(ctx); err != nil {
			a.app.QueueUpdateDraw(func() {
				a.status.SetText(fmt.Sprintf("[red]chat fetch failed: %v", err))
			})
		}
	}()

	defer a.teardown()
	return a.app.SetRoot(a.layout, true).EnableMouse(true).Run()
}

func (a *App) teardown() {
	a.cancel()
	for _, unsub := range a.unsubs {
		unsub()
	}
}
