package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/floatnote/floatnote/internal/common"
	"github.com/floatnote/floatnote/internal/model"
	floatsync "github.com/floatnote/floatnote/internal/sync"
)

// errNotOnline guards the commands that need the shared store.
var errNotOnline = errors.New("this command needs an online account session")

var errNoSession = errors.New("no active session")

func (a *App) requireSession() error {
	if a.engine == nil {
		printlnFn("Log in first (login, register, or guest).")
		return errNoSession
	}
	return nil
}

func (a *App) requireOnline() error {
	if a.Mode == ModeGuest || a.auth == nil {
		printlnFn("Not available in guest or offline mode.")
		return errNotOnline
	}
	return nil
}

func (a *App) Register(ctx context.Context) error {
	if err := a.requireOnline(); err != nil {
		return err
	}

	username, err := GetSimpleText(a.reader, "Choose a username", a.out)
	if err != nil {
		return err
	}
	password, err := GetPassword(a.out)
	if err != nil {
		return err
	}

	if err := a.auth.Register(ctx, username, password); err != nil {
		if errors.Is(err, common.ErrUsernameTaken) {
			printlnFn("That username is taken.")
		} else {
			printlnFn("Registration failed:", err)
		}
		return err
	}

	printlnFn("Registered. Welcome,", username)
	a.beginSession(ctx, username, false)
	return nil
}

func (a *App) Login(ctx context.Context) error {
	if err := a.requireOnline(); err != nil {
		return err
	}

	username, err := GetSimpleText(a.reader, "Username", a.out)
	if err != nil {
		return err
	}
	password, err := GetPassword(a.out)
	if err != nil {
		return err
	}

	if err := a.auth.Login(ctx, username, password); err != nil {
		if errors.Is(err, common.ErrInvalidCredentials) {
			printlnFn("Invalid username or password.")
		} else {
			printlnFn("Login failed:", err)
		}
		return err
	}

	a.beginSession(ctx, username, false)
	return nil
}

// Guest starts a local-only session: no account, no remote writes, data
// stays on this machine.
func (a *App) Guest(ctx context.Context) error {
	a.beginSession(ctx, guestUsername, true)
	printlnFn("Guest session: everything stays on this device.")
	return nil
}

func (a *App) Logout(ctx context.Context) error {
	a.endSession()
	printlnFn("Logged out.")
	return nil
}

func (a *App) List(ctx context.Context) error {
	if err := a.requireSession(); err != nil {
		return err
	}
	cols := a.engine.Visible()
	if len(cols) == 0 {
		printlnFn("No collections yet. Create one with 'add'.")
		return nil
	}
	printlnFn(renderCollections(cols, a.username))
	return nil
}

func (a *App) Use(ctx context.Context) error {
	if err := a.requireSession(); err != nil {
		return err
	}
	cols := a.engine.Visible()
	if len(cols) == 0 {
		printlnFn("No collections to pick from.")
		return nil
	}
	printlnFn(renderCollections(cols, a.username))

	n, err := GetPositiveInt(a.reader, "Collection number", a.out)
	if err != nil || n > len(cols) {
		printlnFn("No such collection.")
		return err
	}

	st := a.settings.Load(ctx, a.username)
	st.ActiveCollectionID = cols[n-1].ID
	if err := a.settings.Save(ctx, a.username, st); err != nil {
		printlnFn("Could not save selection:", err)
		return err
	}
	printlnFn("Using", cols[n-1].Title)
	return nil
}

func (a *App) Items(ctx context.Context) error {
	if err := a.requireSession(); err != nil {
		return err
	}
	col, err := a.activeCollection(ctx)
	if err != nil {
		printlnFn(err.Error())
		return err
	}

	items := col.ActiveItems()
	if len(items) == 0 {
		printlnFn("No reminders in", col.Title)
		return nil
	}
	for i, it := range items {
		printlnFn(fmt.Sprintf("%d. %s (%ds, by %s)", i+1, it.Message, it.DurationSeconds, it.OwnerUsername))
	}
	return nil
}

func (a *App) AddCollection(ctx context.Context) error {
	if err := a.requireSession(); err != nil {
		return err
	}
	title, err := GetSimpleText(a.reader, "Collection title", a.out)
	if err != nil {
		return err
	}
	if title == "" {
		printlnFn("Title cannot be empty.")
		return errors.New("empty title")
	}

	col := model.NewCollection(a.username, title)
	res, err := a.engine.Mutate(ctx, func(cols []model.Collection) ([]model.Collection, error) {
		return append(cols, col), nil
	})
	if err != nil {
		printlnFn("Could not create collection:", err)
		return err
	}
	a.report(res)
	return nil
}

func (a *App) AddReminder(ctx context.Context) error {
	if err := a.requireSession(); err != nil {
		return err
	}
	active, err := a.activeCollection(ctx)
	if err != nil {
		printlnFn(err.Error())
		return err
	}

	message, err := GetSimpleText(a.reader, "Reminder text", a.out)
	if err != nil {
		return err
	}
	if message == "" {
		printlnFn("Reminder text cannot be empty.")
		return errors.New("empty reminder")
	}
	seconds, err := GetPositiveInt(a.reader, "Display duration, seconds", a.out)
	if err != nil {
		printlnFn(err.Error())
		return err
	}

	item := model.NewItem(a.username, message, seconds)
	res, err := a.mutateCollection(ctx, active.ID, func(c *model.Collection) error {
		return c.AddItem(item, a.username)
	})
	if err != nil {
		return err
	}
	a.report(res)
	return nil
}

func (a *App) DeleteReminder(ctx context.Context) error {
	if err := a.requireSession(); err != nil {
		return err
	}
	active, err := a.activeCollection(ctx)
	if err != nil {
		printlnFn(err.Error())
		return err
	}
	items := active.ActiveItems()
	if len(items) == 0 {
		printlnFn("Nothing to delete.")
		return nil
	}
	for i, it := range items {
		printlnFn(fmt.Sprintf("%d. %s", i+1, it.Message))
	}

	n, err := GetPositiveInt(a.reader, "Reminder number", a.out)
	if err != nil || n > len(items) {
		printlnFn("No such reminder.")
		return err
	}

	res, err := a.mutateCollection(ctx, active.ID, func(c *model.Collection) error {
		return c.DeleteItem(items[n-1].ID, a.username)
	})
	if err != nil {
		return err
	}
	a.report(res)
	return nil
}

func (a *App) RenameCollection(ctx context.Context) error {
	if err := a.requireSession(); err != nil {
		return err
	}
	active, err := a.activeCollection(ctx)
	if err != nil {
		printlnFn(err.Error())
		return err
	}

	title, err := GetSimpleText(a.reader, "New title", a.out)
	if err != nil {
		return err
	}

	res, err := a.mutateCollection(ctx, active.ID, func(c *model.Collection) error {
		return c.Rename(title, a.username)
	})
	if err != nil {
		return err
	}
	a.report(res)
	return nil
}

func (a *App) DropCollection(ctx context.Context) error {
	if err := a.requireSession(); err != nil {
		return err
	}
	active, err := a.activeCollection(ctx)
	if err != nil {
		printlnFn(err.Error())
		return err
	}

	confirm, err := GetSimpleText(a.reader, fmt.Sprintf("Delete %q? (yes/no)", active.Title), a.out)
	if err != nil {
		return err
	}
	if !strings.EqualFold(confirm, "yes") {
		printlnFn("Kept.")
		return nil
	}

	res, err := a.mutateCollection(ctx, active.ID, func(c *model.Collection) error {
		return c.Delete(a.username)
	})
	if err != nil {
		return err
	}

	st := a.settings.Load(ctx, a.username)
	st.ActiveCollectionID = ""
	_ = a.settings.Save(ctx, a.username, st)

	a.report(res)
	return nil
}

// mutateCollection applies fn to the collection with the given id inside an
// engine mutation, translating permission errors to a user message.
func (a *App) mutateCollection(ctx context.Context, id string, fn func(c *model.Collection) error) (floatsync.Result, error) {
	res, err := a.engine.Mutate(ctx, func(cols []model.Collection) ([]model.Collection, error) {
		for i := range cols {
			if cols[i].ID == id {
				if err := fn(&cols[i]); err != nil {
					return nil, err
				}
				return cols, nil
			}
		}
		return nil, common.ErrNotFound
	})
	if err != nil {
		switch {
		case errors.Is(err, common.ErrPermissionDenied):
			printlnFn("Only the owner may do that.")
		case errors.Is(err, common.ErrNotFound):
			printlnFn("Collection or reminder not found.")
		default:
			printlnFn("Error:", err)
		}
		return res, err
	}
	return res, nil
}

func (a *App) Share(ctx context.Context) error {
	if err := a.requireSession(); err != nil {
		return err
	}
	if err := a.requireOnline(); err != nil {
		return err
	}
	active, err := a.activeCollection(ctx)
	if err != nil {
		printlnFn(err.Error())
		return err
	}
	if !active.IsOwner(a.username) {
		printlnFn("Only the owner may share a collection.")
		return common.ErrPermissionDenied
	}

	raw, err := GetSimpleText(a.reader, "Share with (comma-separated friends, empty to unshare)", a.out)
	if err != nil {
		return err
	}
	var recipients []string
	for _, r := range strings.Split(raw, ",") {
		if r = strings.TrimSpace(r); r != "" {
			recipients = append(recipients, r)
		}
	}

	updated, err := a.shareS.SetRecipients(ctx, active, recipients, a.username)
	if err != nil {
		switch {
		case errors.Is(err, common.ErrPermissionDenied):
			printlnFn("Share rejected:", err)
		case errors.Is(err, common.ErrRemoteUnavailable):
			printlnFn("Remote not reachable, try again later.")
		default:
			printlnFn("Share failed:", err)
		}
		return err
	}

	// pull the pushed document back into the local snapshot
	res := a.engine.Sync(ctx)
	a.report(res)
	printlnFn("Now shared with", len(updated.SharedWith), "user(s).")
	return nil
}

func (a *App) Friends(ctx context.Context) error {
	if err := a.requireSession(); err != nil {
		return err
	}
	if err := a.requireOnline(); err != nil {
		return err
	}
	list, err := a.friendsS.Friends(ctx, a.username)
	if err != nil {
		printlnFn("Could not load friends:", err)
		return err
	}
	if len(list) == 0 {
		printlnFn("No friends yet. Send a request with 'invite'.")
		return nil
	}
	printlnFn(strings.Join(list, ", "))
	return nil
}

func (a *App) Invite(ctx context.Context) error {
	if err := a.requireSession(); err != nil {
		return err
	}
	if err := a.requireOnline(); err != nil {
		return err
	}
	recipient, err := GetSimpleText(a.reader, "Invite whom?", a.out)
	if err != nil {
		return err
	}

	if err := a.friendsS.Send(ctx, a.username, recipient); err != nil {
		switch {
		case errors.Is(err, common.ErrNotFound):
			printlnFn("No such user.")
		case errors.Is(err, common.ErrRequestExists):
			printlnFn("A request already links you two.")
		default:
			printlnFn("Invite failed:", err)
		}
		return err
	}
	printlnFn("Request sent to", recipient)
	return nil
}

func (a *App) Requests(ctx context.Context) error {
	if err := a.requireSession(); err != nil {
		return err
	}
	if err := a.requireOnline(); err != nil {
		return err
	}
	pending, err := a.friendsS.Pending(ctx, a.username)
	if err != nil {
		printlnFn("Could not load requests:", err)
		return err
	}
	if len(pending) == 0 {
		printlnFn("No pending requests.")
		return nil
	}
	for i, r := range pending {
		printlnFn(fmt.Sprintf("%d. from %s (%s) id=%s", i+1, r.Sender, r.SentAt.Format("2006-01-02"), r.ID))
	}
	return nil
}

func (a *App) Accept(ctx context.Context) error {
	return a.answerRequest(ctx, true)
}

func (a *App) Decline(ctx context.Context) error {
	return a.answerRequest(ctx, false)
}

func (a *App) answerRequest(ctx context.Context, accept bool) error {
	if err := a.requireSession(); err != nil {
		return err
	}
	if err := a.requireOnline(); err != nil {
		return err
	}
	pending, err := a.friendsS.Pending(ctx, a.username)
	if err != nil {
		printlnFn("Could not load requests:", err)
		return err
	}
	if len(pending) == 0 {
		printlnFn("No pending requests.")
		return nil
	}
	for i, r := range pending {
		printlnFn(fmt.Sprintf("%d. from %s", i+1, r.Sender))
	}

	n, err := GetPositiveInt(a.reader, "Request number", a.out)
	if err != nil || n > len(pending) {
		printlnFn("No such request.")
		return err
	}
	req := pending[n-1]

	if accept {
		err = a.friendsS.Accept(ctx, req.ID, a.username)
	} else {
		err = a.friendsS.Decline(ctx, req.ID, a.username)
	}
	if err != nil {
		printlnFn("Could not answer request:", err)
		return err
	}

	if accept {
		printlnFn("You and", req.Sender, "are now friends.")
	} else {
		printlnFn("Declined.")
	}
	return nil
}

func (a *App) Sync(ctx context.Context) error {
	if err := a.requireSession(); err != nil {
		return err
	}
	res := a.engine.Sync(ctx)
	a.report(res)
	return res.Err
}

func (a *App) Status(ctx context.Context) error {
	printlnFn("User:      ", a.username)
	printlnFn("Mode:      ", string(a.Mode))
	if a.coord.Watching() {
		printlnFn("Change feed: watching")
	} else {
		printlnFn("Change feed: idle")
	}
	return nil
}
