// Package monobank shows monobank cards, FOP accounts and jars with a UAH
// total, pinning and currency rates.
package monobank

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/extdeck/extdeck/pkg/binding"
	"github.com/extdeck/extdeck/pkg/extension"
	"github.com/extdeck/extdeck/pkg/fetch"
	"github.com/extdeck/extdeck/pkg/kv"
	"github.com/extdeck/extdeck/pkg/notify"
	"github.com/extdeck/extdeck/pkg/pins"
	"github.com/extdeck/extdeck/pkg/transform"
	"github.com/extdeck/extdeck/pkg/view"
)

// The personal API allows one request per minute per endpoint.
const maxAge = time.Minute

const (
	pinsKey   = "pinned-accounts"
	titlesKey = "account-titles"
)

var categories = []view.Option{
	{Value: "all", Title: "All"},
	{Value: "pinned", Title: "Pinned"},
	{Value: string(KindCard), Title: "Cards"},
	{Value: string(KindFOP), Title: "PEs"},
	{Value: string(KindJar), Title: "Jars"},
}

var typeTint = map[string]string{
	"black":    "black",
	"white":    "white",
	"platinum": "gray",
	"iron":     "gray",
	"yellow":   "yellow",
	"fop":      "purple",
	"eAid":     "blue",
}

// New returns the extension definition.
func New() *extension.Extension {
	return &extension.Extension{
		Name:        "monobank",
		Title:       "Monobank",
		Description: "Accounts, jars and currency rates",
		Preferences: []extension.PreferenceSpec{
			{Name: "token", Title: "Personal Token", Description: "From api.monobank.ua", Required: true, Secret: true},
			{Name: "api_url", Title: "API URL", Default: defaultAPIURL},
		},
		Commands: []extension.Command{
			{Name: "accounts", Title: "Accounts", Description: "Cards, PEs and jars with a UAH total", Open: openAccounts},
			{Name: "rates", Title: "Currency Rates", Open: openRates},
		},
	}
}

func newAPI(env *extension.Env) *api {
	return &api{c: env.Client(
		env.Prefs.StringOr("api_url", defaultAPIURL),
		fetch.WithHeader("X-Token", env.Prefs.String("token")),
	)}
}

func newRates(env *extension.Env, a *api) *binding.Binding[struct{}, []Rate] {
	return binding.New(func(ctx context.Context, _ struct{}) ([]Rate, error) {
		raw, err := a.rates(ctx)
		if err != nil {
			return nil, err
		}
		return toRates(raw), nil
	}, []Rate{},
		binding.WithCache(env.Cache, "rates"),
		binding.WithMaxAge(maxAge),
		binding.WithNotifier(env.Notifier, "Failed to load currency rates"),
		binding.WithOnChange(env.Changed),
		binding.WithLogger(env.Logger),
	)
}

type accountsScreen struct {
	env   *extension.Env
	info  *binding.Binding[struct{}, ClientInfo]
	rates *binding.Binding[struct{}, []Rate]
	pins  *pins.Set

	mu       sync.Mutex
	pinned   []string
	titles   map[string]string
	search   string
	category string
}

func openAccounts(ctx context.Context, env *extension.Env, _ map[string]string) (extension.Screen, error) {
	a := newAPI(env)
	s := &accountsScreen{
		env:      env,
		pins:     pins.New(env.Store, pinsKey),
		category: "all",
	}
	var err error
	if s.pinned, err = s.pins.IDs(ctx); err != nil {
		return nil, fmt.Errorf("loading pins: %w", err)
	}
	if s.titles, _, err = kv.GetJSON[map[string]string](ctx, env.Store, titlesKey); err != nil {
		return nil, fmt.Errorf("loading titles: %w", err)
	}

	s.info = binding.New(func(ctx context.Context, _ struct{}) (ClientInfo, error) {
		raw, err := a.clientInfo(ctx)
		if err != nil {
			return ClientInfo{}, err
		}
		return toClientInfo(raw), nil
	}, ClientInfo{Accounts: []Account{}},
		binding.WithCache(env.Cache, "client-info"),
		binding.WithMaxAge(maxAge),
		binding.WithNotifier(env.Notifier, "Failed to load accounts"),
		binding.WithOnChange(env.Changed),
		binding.WithLogger(env.Logger),
	)
	s.rates = newRates(env, a)
	s.info.Update(struct{}{})
	s.rates.Update(struct{}{})
	return s, nil
}

func (s *accountsScreen) Search(text string) {
	s.mu.Lock()
	s.search = text
	s.mu.Unlock()
	s.env.Changed()
}

func (s *accountsScreen) Filter(value string) {
	if !slices.ContainsFunc(categories, func(o view.Option) bool { return o.Value == value }) {
		value = "all"
	}
	s.mu.Lock()
	s.category = value
	s.mu.Unlock()
	s.env.Changed()
}

// accounts returns the upstream accounts with local titles applied.
func (s *accountsScreen) accounts() []Account {
	data := s.info.State().Data.Accounts
	s.mu.Lock()
	defer s.mu.Unlock()
	return transform.Map(data, func(a Account) Account {
		if t := s.titles[a.ID]; t != "" && a.Kind != KindJar {
			a.Title = t
		}
		return a
	})
}

func (s *accountsScreen) Render() view.View {
	info, rates := s.info.State(), s.rates.State()
	accounts := s.accounts()

	s.mu.Lock()
	pinned := slices.Clone(s.pinned)
	search, category := s.search, s.category
	s.mu.Unlock()

	total := Total(accounts, rates.Data)
	l := &view.List{
		IsLoading:         info.IsLoading || rates.IsLoading,
		SearchText:        search,
		SearchPlaceholder: "Search accounts",
		Dropdown:          &view.Dropdown{ID: "category", Tooltip: "Select Category", Value: category, Options: categories},
		Sections:          []view.Section{},
	}
	if rates.Err == nil {
		l.Title = "Total: " + FormatMoney(total, "UAH")
	}

	matches := func(a Account) bool { return a.Matches(search) }
	pinnedAccounts, rest := pins.Partition(accounts, pinned, func(a Account) string { return a.ID })
	if category != "all" {
		rest = accounts
	}

	r := renderer{pinned: transform.Map(pinnedAccounts, func(a Account) string { return a.ID }), total: total}
	add := func(title string, show bool, items []Account) {
		if !show {
			return
		}
		items = transform.Filter(items, matches)
		l.Sections = append(l.Sections, view.Section{
			Title: title,
			Items: transform.Map(items, r.item),
		})
	}
	add("Pinned", category == "all" || category == "pinned", pinnedAccounts)
	for _, k := range []Kind{KindCard, KindFOP, KindJar} {
		add(sectionTitle(k), category == "all" || category == string(k), transform.Filter(rest, func(a Account) bool { return a.Kind == k }))
	}

	if len(l.AllItems()) == 0 && !l.IsLoading {
		l.Empty = &view.Empty{Title: "No accounts"}
		if info.Err != nil {
			l.Empty = &view.Empty{Title: "Could not load accounts", Description: fetch.Message(info.Err)}
		}
	}
	return l
}

func sectionTitle(k Kind) string {
	switch k {
	case KindFOP:
		return "PEs"
	case KindJar:
		return "Jars"
	}
	return "Cards"
}

type renderer struct {
	// pinned holds the IDs shown in the Pinned section, in order.
	pinned []string
	total  int64
}

func decimal(minor int64) string {
	return strconv.FormatFloat(float64(minor)/100, 'f', 2, 64)
}

func (r renderer) item(a Account) view.Item {
	it := view.Item{
		ID:       a.ID,
		Title:    a.DisplayTitle(),
		Subtitle: FormatMoney(a.Balance, a.Currency.Code),
		Detail:   detail(a),
	}

	if a.Kind == KindJar {
		it.Icon = &view.Icon{Source: "coins"}
		it.Accessories = jarAccessories(a)
	} else {
		it.Icon = &view.Icon{Source: "credit-card", Tint: typeTint[a.Type]}
		panOrIBAN := transform.Or(a.PAN, a.IBAN)
		if a.Kind == KindFOP {
			panOrIBAN = a.IBAN
		}
		if a.Title != "" {
			it.Accessories = append(it.Accessories, view.Accessory{Text: panOrIBAN})
		}
		it.Accessories = append(it.Accessories, view.Accessory{Tag: a.Type})
	}

	if u := a.TopUpURL(); u != "" {
		it.Actions = append(it.Actions,
			view.OpenAction("Open Top Up Page", u),
			view.CopyAction("Copy Top Up Page URL", u),
		)
	}
	if a.Kind != KindJar {
		it.Actions = append(it.Actions, view.CopyAction("Copy IBAN", a.IBAN).WithShortcut("cmd+shift+enter"))
	}
	it.Actions = append(it.Actions, view.CopyAction("Copy Balance", decimal(a.Balance)).WithShortcut("cmd+shift+b"))
	if a.Kind == KindJar && a.Goal > 0 {
		it.Actions = append(it.Actions, view.CopyAction("Copy Goal", decimal(a.Goal)).WithShortcut("cmd+shift+g"))
	}
	it.Actions = append(it.Actions, view.CopyAction("Copy Total", decimal(r.total)).WithShortcut("cmd+shift+t"))
	if a.Kind != KindJar {
		it.Actions = append(it.Actions, view.PerformAction(extension.ActionID("rename", a.ID), "Edit Account").WithShortcut("cmd+e"))
	}

	if !slices.Contains(r.pinned, a.ID) {
		it.Actions = append(it.Actions, view.PerformAction(extension.ActionID("pin", a.ID), "Pin").WithShortcut("cmd+shift+p"))
	} else {
		it.Actions = append(it.Actions, view.PerformAction(extension.ActionID("unpin", a.ID), "Unpin").WithShortcut("cmd+shift+p"))
		up, down := pins.Movable(r.pinned, a.ID)
		if up {
			it.Actions = append(it.Actions, view.PerformAction(extension.ActionID("move-up", a.ID), "Move Up in Pinned").WithShortcut("cmd+opt+up"))
		}
		if down {
			it.Actions = append(it.Actions, view.PerformAction(extension.ActionID("move-down", a.ID), "Move Down in Pinned").WithShortcut("cmd+opt+down"))
		}
	}
	it.Actions = append(it.Actions, view.PerformAction("refresh", "Refresh").WithShortcut("cmd+r"))
	return it
}

func jarAccessories(a Account) []view.Accessory {
	if a.Goal <= 0 {
		return []view.Accessory{{Text: "No goal"}}
	}
	progress := float64(a.Balance) / float64(a.Goal)
	icon := &view.Icon{Source: "progress", Tint: "green"}
	if progress >= 1 {
		icon = &view.Icon{Source: "check-circle", Tint: "green"}
	}
	return []view.Accessory{
		{Text: FormatMoney(a.Goal, a.Currency.Code)},
		{Icon: icon, Tooltip: fmt.Sprintf("%.2f%%", progress*100)},
	}
}

func detail(a Account) *view.Detail {
	cur := a.Currency.Flag + " " + a.Currency.Code
	if a.Currency.Name != "" {
		cur += ", " + a.Currency.Name
	}
	md := []view.Metadata{{Label: "ID", Text: a.ID}}
	if a.Kind == KindJar {
		goal := "No goal"
		if a.Goal > 0 {
			goal = FormatMoney(a.Goal, a.Currency.Code)
		}
		md = append(md,
			view.Metadata{Label: "Title", Text: a.Title},
			view.Metadata{Label: "Description", Text: a.Description},
			view.Metadata{Label: "Currency", Text: cur},
			view.Metadata{Label: "Balance", Text: FormatMoney(a.Balance, a.Currency.Code)},
			view.Metadata{Label: "Goal", Text: goal},
		)
	} else {
		if a.PAN != "" {
			md = append(md, view.Metadata{Label: "Masked Pan", Text: a.PAN})
		}
		md = append(md,
			view.Metadata{Label: "IBAN", Text: a.IBAN},
			view.Metadata{Label: "Type", Text: a.Type},
			view.Metadata{Label: "Currency", Text: cur},
			view.Metadata{Label: "Balance", Text: FormatMoney(a.Balance, a.Currency.Code)},
			view.Metadata{Label: "Credit Limit", Text: FormatMoney(a.CreditLimit, a.Currency.Code)},
		)
		if a.CashbackType != "" {
			md = append(md, view.Metadata{Label: "Cashback Type", Text: a.CashbackType})
		}
	}
	if u := a.TopUpURL(); u != "" {
		md = append(md, view.Metadata{Label: "Top Up Page URL", Text: u, Link: u})
	}
	return &view.Detail{Metadata: md}
}

func (s *accountsScreen) Perform(ctx context.Context, action string, input map[string]string) error {
	verb, ops := extension.ParseAction(action)
	if verb == "refresh" {
		s.info.Revalidate()
		s.rates.Revalidate()
		return nil
	}
	if len(ops) != 1 {
		return extension.UnknownAction(action)
	}
	id := ops[0]

	switch verb {
	case "pin":
		return s.updatePins(ctx, id, "Pinned", s.pins.Pin)
	case "unpin":
		return s.updatePins(ctx, id, "Unpinned", s.pins.Unpin)
	case "move-up":
		return s.updatePins(ctx, id, "Moved up", func(ctx context.Context, id string) (bool, error) {
			return s.pins.MoveAmong(ctx, id, pins.Up, s.accountIDs())
		})
	case "move-down":
		return s.updatePins(ctx, id, "Moved down", func(ctx context.Context, id string) (bool, error) {
			return s.pins.MoveAmong(ctx, id, pins.Down, s.accountIDs())
		})
	case "rename":
		return s.rename(ctx, id, strings.TrimSpace(input["title"]))
	}
	return extension.UnknownAction(action)
}

func (s *accountsScreen) accountIDs() []string {
	return transform.Map(s.accounts(), func(a Account) string { return a.ID })
}

func (s *accountsScreen) title(id string) string {
	for _, a := range s.accounts() {
		if a.ID == id {
			return a.DisplayTitle()
		}
	}
	return id
}

func (s *accountsScreen) updatePins(ctx context.Context, id, verb string, op func(context.Context, string) (bool, error)) error {
	changed, err := op(ctx, id)
	if err != nil {
		s.env.Toast("Failed to update pins", err)
		return err
	}
	ids, err := s.pins.IDs(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.pinned = ids
	s.mu.Unlock()
	if changed {
		notify.Success(s.env.Notifier, verb+" "+s.title(id), "")
		s.env.Changed()
	}
	return nil
}

func (s *accountsScreen) rename(ctx context.Context, id, title string) error {
	s.mu.Lock()
	titles := make(map[string]string, len(s.titles)+1)
	for k, v := range s.titles {
		titles[k] = v
	}
	s.mu.Unlock()

	if title == "" {
		delete(titles, id)
	} else {
		titles[id] = title
	}
	if err := kv.SetJSON(ctx, s.env.Store, titlesKey, titles); err != nil {
		s.env.Toast("Failed to save account", err)
		return err
	}
	s.mu.Lock()
	s.titles = titles
	s.mu.Unlock()
	notify.Success(s.env.Notifier, "Account saved", s.title(id))
	s.env.Changed()
	return nil
}

func (s *accountsScreen) Wait() {
	s.info.Wait()
	s.rates.Wait()
}

func (s *accountsScreen) Close() {
	s.info.Close()
	s.rates.Close()
}

type ratesScreen struct {
	env   *extension.Env
	rates *binding.Binding[struct{}, []Rate]

	mu     sync.Mutex
	search string
}

func openRates(_ context.Context, env *extension.Env, _ map[string]string) (extension.Screen, error) {
	s := &ratesScreen{env: env, rates: newRates(env, newAPI(env))}
	s.rates.Update(struct{}{})
	return s, nil
}

func (s *ratesScreen) Search(text string) {
	s.mu.Lock()
	s.search = text
	s.mu.Unlock()
	s.env.Changed()
}

func (s *ratesScreen) Render() view.View {
	st := s.rates.State()
	s.mu.Lock()
	text := s.search
	s.mu.Unlock()
	search := strings.ToLower(strings.TrimSpace(text))

	var known, other []view.Item
	for _, r := range st.Data {
		c := r.Currency
		if search != "" && !strings.Contains(strings.ToLower(c.Code+" "+c.Name), search) {
			continue
		}
		it := view.Item{
			ID:       c.Code,
			Title:    c.Flag + " " + c.Code,
			Subtitle: c.Name,
			Actions: []view.Action{
				view.CopyAction("Copy Rate", strconv.FormatFloat(r.Value(), 'f', 4, 64)),
				view.PerformAction("refresh", "Refresh"),
			},
		}
		if r.Cross > 0 {
			it.Accessories = []view.Accessory{{Text: strconv.FormatFloat(r.Cross, 'f', 4, 64), Tooltip: "Cross"}}
		} else {
			it.Accessories = []view.Accessory{
				{Text: strconv.FormatFloat(r.Buy, 'f', 4, 64), Tooltip: "Buy"},
				{Text: strconv.FormatFloat(r.Sell, 'f', 4, 64), Tooltip: "Sell"},
			}
		}
		if !r.Date.IsZero() {
			it.Accessories = append(it.Accessories, view.Accessory{Date: r.Date.Format(time.RFC3339)})
		}
		if c.Name != "" {
			known = append(known, it)
		} else {
			other = append(other, it)
		}
	}

	l := &view.List{Title: "Rates to UAH", IsLoading: st.IsLoading, SearchText: text, SearchPlaceholder: "Search currencies"}
	l.Sections = []view.Section{
		{Title: "Major", Items: transform.NonNil(known)},
		{Title: "Other", Items: transform.NonNil(other)},
	}
	if st.Err != nil && len(st.Data) == 0 {
		l.Empty = &view.Empty{Title: "Could not load rates", Description: fetch.Message(st.Err)}
	}
	return l
}

func (s *ratesScreen) Perform(_ context.Context, action string, _ map[string]string) error {
	if action == "refresh" {
		s.rates.Revalidate()
		return nil
	}
	return extension.UnknownAction(action)
}

func (s *ratesScreen) Wait()  { s.rates.Wait() }
func (s *ratesScreen) Close() { s.rates.Close() }
