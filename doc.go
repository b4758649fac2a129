// Package lavender publishes static resources under content-addressed names.
//
// Every resource of a module is hashed and written to the destination as
// "dir/base-<digest>.ext", so browsers and proxies can cache it forever. An
// index maps each original path to its published path and digest; a digest
// cache per module avoids rehashing resources whose revision is unchanged;
// a marker file locks the destination against concurrent publishers.
//
// Basic usage:
//
//	mod, _ := lavender.OpenModule(ctx, lavender.ModuleConfig{
//	    Name: "webapp",
//	    Type: lavender.ModuleFS,
//	    Path: "./web/static",
//	})
//
//	dest := lavender.LocalNode("/srv/docroot")
//	stats, err := lavender.Publish(ctx, dest, []lavender.Module{mod},
//	    lavender.WithCacheDir("~/.cache/lavender"),
//	    lavender.WithPrecompress("gzip", "zstd"),
//	)
//
//	// Resolve an original path at render time
//	idx, _ := lavender.LoadIndexNode(dest.Join(lavender.IndexPath(lavender.DefaultIndexName)))
//	label, ok, _ := idx.Lookup("css/app.css")
//	fmt.Println(label.PublishedPath) // css/app-5d41402a.css
//
//	// Check the destination against its index
//	problems, _ := lavender.Verify(ctx, dest)
//
// Lower level pieces are usable on their own:
//
//	idx := lavender.NewIndex()
//	idx.Add(lavender.NewLabel("a.js", "a-0cc175b9.js", lavender.MD5([]byte("a"))))
//
//	cache, _ := lavender.LoadOrCreateCache("~/.cache/lavender", "webapp")
//	cache.Add("a.js", "rev1", digest)
//	cache.Save()
//
//	err := lavender.WithLock(ctx, dest, "me@host", time.Minute, func(l *lavender.Lock) error {
//	    return l.Join("robots.txt").WriteString("User-agent: *\n")
//	})
package lavender
