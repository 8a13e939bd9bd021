// Package minio browses buckets and objects on a MinIO or other S3
// compatible server.
package minio

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"
	"sync"
	"time"

	"github.com/extdeck/extdeck/pkg/binding"
	"github.com/extdeck/extdeck/pkg/extension"
	"github.com/extdeck/extdeck/pkg/fetch"
	"github.com/extdeck/extdeck/pkg/notify"
	"github.com/extdeck/extdeck/pkg/transform"
	"github.com/extdeck/extdeck/pkg/view"
)

// errNoBucket is returned when the chosen bucket does not exist.
var errNoBucket = errors.New("bucket does not exist")

// openStore connects to the configured server. Tests replace it.
var openStore = func(cfg storeConfig) (objectStore, error) {
	s, err := newMinioStore(cfg)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// New returns the extension definition.
func New() *extension.Extension {
	return &extension.Extension{
		Name:        "minio",
		Title:       "MinIO",
		Description: "Browse buckets and objects on S3 compatible storage",
		Preferences: []extension.PreferenceSpec{
			{Name: "endpoint", Title: "Endpoint", Description: "e.g. play.min.io", Required: true},
			{Name: "port", Title: "Port", Description: "Defaults to 443 with SSL, 80 without"},
			{Name: "access_key", Title: "Access Key", Required: true},
			{Name: "secret_key", Title: "Secret Key", Required: true, Secret: true},
			{Name: "use_ssl", Title: "Use SSL", Default: "true"},
			{Name: "region", Title: "Region"},
			{Name: "default_bucket", Title: "Default Bucket"},
			{Name: "public_url", Title: "Public URL Base", Description: "Base URL objects are publicly served from"},
		},
		Commands: []extension.Command{
			{Name: "buckets", Title: "List Buckets", Open: openBuckets},
			{Name: "objects", Title: "Browse Objects", Arguments: []extension.Argument{
				{Name: "bucket", Placeholder: "Bucket"},
				{Name: "prefix", Placeholder: "Prefix"},
			}, Open: openObjects},
		},
	}
}

func connect(env *extension.Env) (objectStore, error) {
	return openStore(storeConfig{
		Endpoint:  env.Prefs.String("endpoint"),
		Port:      env.Prefs.Int("port", 0),
		AccessKey: env.Prefs.String("access_key"),
		SecretKey: env.Prefs.String("secret_key"),
		UseSSL:    env.Prefs.Bool("use_ssl"),
		Region:    env.Prefs.String("region"),
	})
}

type bucketsScreen struct {
	env     *extension.Env
	store   objectStore
	buckets *binding.Binding[string, []Bucket]
}

func openBuckets(_ context.Context, env *extension.Env, _ map[string]string) (extension.Screen, error) {
	store, err := connect(env)
	if err != nil {
		return nil, err
	}
	s := &bucketsScreen{env: env, store: store}
	s.buckets = binding.New(s.load, []Bucket{},
		binding.WithCache(env.Cache, "buckets"),
		binding.WithNotifier(env.Notifier, "Failed to list buckets"),
		binding.WithOnChange(env.Changed),
		binding.WithLogger(env.Logger),
	)
	s.buckets.Update(env.Prefs.String("endpoint"))
	return s, nil
}

func (s *bucketsScreen) load(ctx context.Context, _ string) ([]Bucket, error) {
	raw, err := s.store.ListBuckets(ctx)
	if err != nil {
		return nil, describe(err)
	}
	return toBuckets(raw), nil
}

func (s *bucketsScreen) Render() view.View {
	st := s.buckets.State()
	l := &view.List{
		Title:             "Buckets",
		IsLoading:         st.IsLoading,
		SearchPlaceholder: "Filter buckets",
		Sections: []view.Section{{
			Items: transform.Map(st.Data, func(b Bucket) view.Item {
				it := view.Item{
					ID:    b.Name,
					Title: b.Name,
					Icon:  &view.Icon{Source: "hard-drive"},
					Actions: []view.Action{
						view.PushAction("Browse Bucket", "objects", map[string]string{"bucket": b.Name}),
						view.PerformAction("refresh", "Refresh").WithShortcut("cmd+r"),
					},
				}
				if !b.Created.IsZero() {
					it.Accessories = []view.Accessory{{Date: b.Created.Format(time.RFC3339), Tooltip: "Created"}}
				}
				return it
			}),
		}},
	}
	if len(st.Data) == 0 && !st.IsLoading {
		l.Empty = &view.Empty{Title: "No buckets"}
		if st.Err != nil {
			l.Empty = &view.Empty{Title: "Could not list buckets", Description: fetch.Message(st.Err)}
		}
	}
	return l
}

func (s *bucketsScreen) Perform(_ context.Context, action string, _ map[string]string) error {
	if action != "refresh" {
		return extension.UnknownAction(action)
	}
	s.buckets.Revalidate()
	return nil
}

func (s *bucketsScreen) Wait()  { s.buckets.Wait() }
func (s *bucketsScreen) Close() { s.buckets.Close() }

// location is the objects binding key.
type location struct {
	Bucket string
	Prefix string
}

// listing is one level of a bucket.
type listing struct {
	Prefix  string   `json:"prefix"`
	Objects []Object `json:"objects"`
}

type objectsScreen struct {
	env     *extension.Env
	store   objectStore
	bucket  string
	objects *binding.Binding[location, listing]

	mu     sync.Mutex
	search string
	shared map[string]string
}

func openObjects(_ context.Context, env *extension.Env, args map[string]string) (extension.Screen, error) {
	bucket := transform.Or(strings.TrimSpace(args["bucket"]), env.Prefs.String("default_bucket"))
	if bucket == "" {
		return nil, &extension.MissingPreferenceError{Extension: env.Extension, Names: []string{"default_bucket"}}
	}
	store, err := connect(env)
	if err != nil {
		return nil, err
	}
	s := &objectsScreen{env: env, store: store, bucket: bucket, shared: map[string]string{}}
	s.objects = binding.New(s.load, listing{Objects: []Object{}},
		binding.WithNotifier(env.Notifier, "Failed to list objects"),
		binding.WithOnChange(env.Changed),
		binding.WithLogger(env.Logger),
	)
	prefix := strings.TrimPrefix(strings.TrimSpace(args["prefix"]), "/")
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	s.objects.Update(location{Bucket: bucket, Prefix: prefix})
	return s, nil
}

func (s *objectsScreen) load(ctx context.Context, loc location) (listing, error) {
	ok, err := s.store.BucketExists(ctx, loc.Bucket)
	if err != nil {
		return listing{}, describe(err)
	}
	if !ok {
		return listing{}, fmt.Errorf("%s: %w", loc.Bucket, errNoBucket)
	}
	raw, err := s.store.ListObjects(ctx, loc.Bucket, loc.Prefix)
	if err != nil {
		return listing{}, describe(err)
	}
	return listing{Prefix: loc.Prefix, Objects: toObjects(loc.Prefix, raw)}, nil
}

func (s *objectsScreen) Search(text string) {
	s.mu.Lock()
	s.search = text
	s.mu.Unlock()
	s.env.Changed()
}

func (s *objectsScreen) Render() view.View {
	st := s.objects.State()
	loc := s.objects.Key()
	s.mu.Lock()
	search := s.search
	shared := maps.Clone(s.shared)
	s.mu.Unlock()

	needle := strings.ToLower(strings.TrimSpace(search))
	objects := transform.Filter(st.Data.Objects, func(o Object) bool {
		return needle == "" || strings.Contains(strings.ToLower(o.Name()), needle)
	})
	where := s.bucket
	if loc.Prefix != "" {
		where += "/" + loc.Prefix
	}
	l := &view.List{
		Title:             "MinIO: " + where,
		IsLoading:         st.IsLoading,
		SearchText:        search,
		SearchPlaceholder: "Search files",
		Sections: []view.Section{{
			Items: transform.Map(objects, func(o Object) view.Item { return s.item(loc, o, shared[o.Key]) }),
		}},
	}
	if len(objects) == 0 && !st.IsLoading {
		l.Empty = &view.Empty{Title: "No files", Description: "No files found in " + where}
		if st.Err != nil {
			l.Empty = &view.Empty{Title: "Error", Description: fetch.Message(st.Err), Icon: &view.Icon{Source: "exclamation-mark", Tint: "red"}}
		}
	}
	return l
}

func (s *objectsScreen) item(loc location, o Object, shareURL string) view.Item {
	it := view.Item{
		ID:    o.Key,
		Title: o.Name(),
		Icon:  &view.Icon{Source: icon(o)},
	}
	if o.IsDir {
		it.Subtitle = "Directory"
		it.Actions = append(it.Actions, view.PerformAction(extension.ActionID("open", o.Key), "Open Directory"))
	} else {
		it.Subtitle = FormatSize(o.Size)
		if !o.Modified.IsZero() {
			it.Accessories = []view.Accessory{{Date: o.Modified.Format(time.RFC3339), Tooltip: "Last modified"}}
		}
		public := PublicURL(s.env.Prefs.String("public_url"), s.bucket, o.Key)
		if public != "" {
			it.Actions = append(it.Actions, view.OpenAction("Open in Browser", public), view.CopyAction("Copy File URL", public))
		}
		it.Actions = append(it.Actions, view.PerformAction(extension.ActionID("share", o.Key), "Create Temporary Link").WithShortcut("cmd+l"))
		if shareURL != "" {
			it.Actions = append(it.Actions, view.CopyAction("Copy Temporary Link", shareURL))
		}
		it.Actions = append(it.Actions, view.CopyAction("Copy Object Key", o.Key))
		it.Actions = append(it.Actions, view.PerformAction(extension.ActionID("delete", o.Key), "Delete").Destructive().WithShortcut("ctrl+x"))

		md := "# " + o.Name() + "\n\nNo preview available."
		if link := transform.Or(public, shareURL); link != "" {
			md = previewMarkdown(o, link)
		}
		it.Detail = &view.Detail{
			Markdown: md,
			Metadata: []view.Metadata{
				{Label: "Size", Text: FormatSize(o.Size)},
				{Label: "Last Modified", Text: o.Modified.Format("2006-01-02 15:04:05")},
				{Label: "ETag", Text: o.ETag},
			},
		}
	}
	if loc.Prefix != "" {
		it.Actions = append(it.Actions, view.PerformAction("up", "Go Up").WithShortcut("cmd+up"))
	}
	it.Actions = append(it.Actions, view.PerformAction("refresh", "Refresh").WithShortcut("cmd+r"))
	return it
}

func (s *objectsScreen) Perform(ctx context.Context, action string, _ map[string]string) error {
	verb, ops := extension.ParseAction(action)
	loc := s.objects.Key()
	switch {
	case verb == "refresh":
		s.objects.Revalidate()
		return nil
	case verb == "up":
		if loc.Prefix != "" {
			s.navigate(parentPrefix(loc.Prefix))
		}
		return nil
	case verb == "open" && len(ops) == 1:
		if !strings.HasSuffix(ops[0], "/") {
			return extension.UnknownAction(action)
		}
		s.navigate(ops[0])
		return nil
	case verb == "share" && len(ops) == 1:
		return s.share(ctx, ops[0])
	case verb == "delete" && len(ops) == 1:
		return s.delete(ctx, ops[0])
	}
	return extension.UnknownAction(action)
}

func (s *objectsScreen) navigate(prefix string) {
	s.mu.Lock()
	s.search = ""
	s.mu.Unlock()
	s.objects.Update(location{Bucket: s.bucket, Prefix: prefix})
}

func (s *objectsScreen) share(ctx context.Context, key string) error {
	u, err := s.store.PresignedGetObject(ctx, s.bucket, key, shareExpiry)
	if err != nil {
		err = describe(err)
		s.env.Toast("Failed to generate link", err)
		return err
	}
	s.mu.Lock()
	s.shared[key] = u.String()
	s.mu.Unlock()
	notify.Success(s.env.Notifier, "Temporary link created", "Valid for 1 hour")
	s.env.Changed()
	return nil
}

func (s *objectsScreen) delete(ctx context.Context, key string) error {
	if strings.HasSuffix(key, "/") {
		return fmt.Errorf("delete %s: directories cannot be deleted", key)
	}
	err := s.objects.Mutate(ctx, binding.Mutation[listing]{
		Optimistic: func(l listing) listing {
			l.Objects = transform.Remove(l.Objects, func(o Object) bool { return o.Key == key })
			return l
		},
		Commit: func(ctx context.Context) (func(listing) listing, error) {
			return nil, describe(s.store.RemoveObject(ctx, s.bucket, key))
		},
		FailureTitle: "Delete failed",
	})
	if err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.shared, key)
	s.mu.Unlock()
	notify.Success(s.env.Notifier, "Delete successful", Object{Key: key}.Name())
	return nil
}

func (s *objectsScreen) Wait()  { s.objects.Wait() }
func (s *objectsScreen) Close() { s.objects.Close() }
