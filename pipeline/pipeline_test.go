package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/citationhunt/chparse"
	"github.com/citationhunt/chparse/snippet"
	"github.com/citationhunt/chparse/store"
	"github.com/citationhunt/chparse/workerpool"
)

type testPage struct {
	id, ns, title, text string
	redirect            bool
}

var testPages = []testPage{
	{id: "1", ns: "0", title: "Sea sponge", text: "Sponges are animals that live in water.{{cn}} They filter."},
	{id: "2", ns: "0", title: "Spongia", text: "#REDIRECT [[Sea sponge]]", redirect: true},
	{id: "3", ns: "0", title: "Empty"},
	{id: "4", ns: "1", title: "Talk:Sea sponge", text: "Is this sourced?{{cn}}"},
	{id: "5", ns: "0", title: "Coral", text: "Corals are well sourced."},
	{id: "6", ns: "0", title: "Unrequested", text: "Nobody asked.{{cn}}"},
}

func makeDump(pages []testPage) string {
	var b strings.Builder
	b.WriteString("<mediawiki>\n<siteinfo><sitename>Wikipedia</sitename><dbname>enwiki</dbname></siteinfo>\n")
	for _, p := range pages {
		fmt.Fprintf(&b, "<page><title>%s</title><ns>%s</ns><id>%s</id>", p.title, p.ns, p.id)
		if p.redirect {
			b.WriteString(`<redirect title="x" />`)
		}
		fmt.Fprintf(&b, "<revision><id>1</id><text>%s</text></revision></page>\n", p.text)
	}
	b.WriteString("</mediawiki>\n")
	return b.String()
}

func idSet(ids ...string) map[string]struct{} {
	rv := map[string]struct{}{}
	for _, id := range ids {
		rv[id] = struct{}{}
	}
	return rv
}

type fakePool struct {
	posted   []ArticleTask
	done     bool
	canceled bool
	postErr  error
	onPost   func()
	err      error
}

func (f *fakePool) Post(t ArticleTask) error {
	if f.postErr != nil {
		return f.postErr
	}
	f.posted = append(f.posted, t)
	if f.onPost != nil {
		f.onPost()
	}
	return nil
}

func (f *fakePool) Done() error {
	f.done = true
	return nil
}

func (f *fakePool) Cancel() error {
	f.canceled = true
	return f.err
}

func (f *fakePool) Err() error {
	return f.err
}

func newParser(t *testing.T, dump string) chparse.Parser {
	t.Helper()
	p, err := chparse.NewParser(strings.NewReader(dump))
	if err != nil {
		t.Fatalf("Error creating parser: %v", err)
	}
	return p
}

func TestDispatcher(t *testing.T) {
	pool := &fakePool{}
	var reports []int64
	d := &Dispatcher{
		Pool:          pool,
		ProgressEvery: 2,
		Progress:      func(r ProgressReport) { reports = append(reports, r.Pages) },
	}

	stats, err := d.Run(context.Background(), newParser(t, makeDump(testPages)),
		idSet("1", "2", "3", "4", "5", "99"))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !pool.done || pool.canceled {
		t.Fatalf("Expected the pool finished normally")
	}

	var posted []string
	for _, task := range pool.posted {
		posted = append(posted, task.PageID)
	}
	if !reflect.DeepEqual([]string{"1", "5"}, posted) {
		t.Fatalf("Expected pages 1 and 5 posted, got %v", posted)
	}
	if pool.posted[0].Title != "Sea sponge" || pool.posted[0].Text != testPages[0].text {
		t.Fatalf("Unexpected task %+v", pool.posted[0])
	}

	checks := []struct {
		name     string
		exp, got []string
	}{
		{"redirects", []string{"2"}, stats.RedirectIDs},
		{"empty", []string{"3"}, stats.EmptyIDs},
		{"not found", []string{"4", "99"}, stats.NotFoundIDs},
	}
	for _, c := range checks {
		if !reflect.DeepEqual(c.exp, c.got) {
			t.Errorf("Expected %v %v, got %v", c.name, c.exp, c.got)
		}
	}
	if stats.Pages != 6 || stats.Posted != 2 || stats.Cancelled {
		t.Fatalf("Unexpected stats %+v", stats)
	}
	if !reflect.DeepEqual([]int64{2, 4, 6}, reports) {
		t.Fatalf("Expected progress at 2, 4 and 6 pages, got %v", reports)
	}
}

func TestDispatcherCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool := &fakePool{onPost: cancel}
	d := &Dispatcher{Pool: pool}
	stats, err := d.Run(ctx, newParser(t, makeDump(testPages)), idSet("1", "5"))
	if err != nil {
		t.Fatalf("Cancellation is not an error, got %v", err)
	}
	if !stats.Cancelled || !pool.canceled || pool.done {
		t.Fatalf("Expected a canceled run, got %+v", stats)
	}
	if len(pool.posted) != 1 {
		t.Fatalf("Expected no posts after cancel, got %v", len(pool.posted))
	}
	if !reflect.DeepEqual([]string{"5"}, stats.NotFoundIDs) {
		t.Fatalf("Expected the unread page not found, got %v", stats.NotFoundIDs)
	}
}

func TestDispatcherPoolCanceled(t *testing.T) {
	pool := &fakePool{postErr: fmt.Errorf("posting: %w", workerpool.ErrCanceled)}
	d := &Dispatcher{Pool: pool}
	stats, err := d.Run(context.Background(), newParser(t, makeDump(testPages)), idSet("1"))
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if !stats.Cancelled || !reflect.DeepEqual([]string{"1"}, stats.NotFoundIDs) {
		t.Fatalf("Expected a canceled run with page 1 unprocessed, got %+v", stats)
	}
}

func TestDispatcherFatal(t *testing.T) {
	boom := errors.New("disk full")
	pool := &fakePool{postErr: boom}
	d := &Dispatcher{Pool: pool}
	stats, err := d.Run(context.Background(), newParser(t, makeDump(testPages)), idSet("1"))
	if !errors.Is(err, boom) {
		t.Fatalf("Expected the pool's error, got %v", err)
	}
	if !pool.canceled || stats.Fatal != boom.Error() || stats.Cancelled {
		t.Fatalf("Unexpected stats %+v", stats)
	}
}

func TestDispatcherBadDump(t *testing.T) {
	dump := makeDump(testPages[:1])
	dump = dump[:len(dump)-len("</page>\n</mediawiki>\n")-10]

	pool := &fakePool{}
	d := &Dispatcher{Pool: pool}
	stats, err := d.Run(context.Background(), newParser(t, dump), idSet("1"))
	if err == nil {
		t.Fatalf("Expected a dump error")
	}
	if !pool.canceled || pool.done || stats.Fatal == "" {
		t.Fatalf("Expected the pool canceled on a dump error, got %+v", stats)
	}
}

func TestRowParser(t *testing.T) {
	p := &RowParser{WikiURL: "https://en.wikipedia.org/wiki/", MinLen: 1, MaxLen: 1000}
	if err := p.Setup(context.Background()); err != nil {
		t.Fatalf("Error in setup: %v", err)
	}

	text := "Lead.{{cn}}\n== Early life (1900) ==\nBorn somewhere.{{cn}}"
	r, err := p.Work(context.Background(), ArticleTask{PageID: "7", Title: "Jane Doe", Text: text})
	if err != nil {
		t.Fatalf("Error working: %v", err)
	}
	exp := &store.Article{PageID: "7", URL: "https://en.wikipedia.org/wiki/Jane_Doe", Title: "Jane Doe"}
	if !reflect.DeepEqual(exp, r.Article) {
		t.Fatalf("Expected %+v, got %+v", exp, r.Article)
	}
	if len(r.Snippets) != 2 {
		t.Fatalf("Expected 2 snippets, got %+v", r.Snippets)
	}
	second := r.Snippets[1]
	if second.Section != "Early_life_.281900.29" || second.ArticleID != "7" {
		t.Fatalf("Unexpected snippet %+v", second)
	}
	if second.Text != "Born somewhere."+snippet.Marker {
		t.Fatalf("Unexpected snippet text %q", second.Text)
	}
	if second.ID != snippet.ID("Jane Doe", second.Text) {
		t.Fatalf("Unexpected snippet id %v", second.ID)
	}

	r, err = p.Work(context.Background(), ArticleTask{PageID: "8", Title: "X", Text: "Sourced."})
	if err != nil || r.Article != nil || len(r.Snippets) != 0 || r.PageID != "8" {
		t.Fatalf("Expected an empty result, got %+v, %v", r, err)
	}
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) string {
		fn := filepath.Join(dir, name)
		if err := os.WriteFile(fn, []byte(content), 0644); err != nil {
			t.Fatalf("Error writing %v: %v", name, err)
		}
		return fn
	}

	opts := Options{
		DumpPath:   write("dump.xml", makeDump(testPages)),
		PageIDPath: write("pageids", "1\n 2 \n\n3\n4\n5\n99\n"),
		IndexPath:  write("index.txt", "10:1:Sea sponge\n10:2:Spongia\n10:3:Empty\n10:4:Talk:Sea sponge\n10:5:Coral\n10:6:Unrequested\n"),
		StatsPath:  filepath.Join(dir, "stats.gob"),
		WikiURL:    "https://en.wikipedia.org/wiki/",
		MinLen:     1,
		MaxLen:     1000,
		Workers:    2,
		QueueSize:  4,
		Store: store.Config{
			Path:     filepath.Join(dir, "chdb.sqlite"),
			Reset:    true,
			Attempts: 3,
		},
	}

	stats, err := Run(context.Background(), opts)
	if err != nil {
		t.Fatalf("Error running: %v", err)
	}
	if stats.Articles != 1 || stats.Snippets != 1 || stats.Cancelled || stats.RunID == "" {
		t.Fatalf("Unexpected stats %+v", stats)
	}
	if !reflect.DeepEqual([]string{"5"}, stats.NoSnippetIDs) {
		t.Fatalf("Expected page 5 without snippets, got %v", stats.NoSnippetIDs)
	}

	// Every requested id is accounted for exactly once.
	var all []string
	for _, ids := range [][]string{
		stats.RedirectIDs, stats.EmptyIDs, stats.NotFoundIDs, stats.NoSnippetIDs, {"1"},
	} {
		all = append(all, ids...)
	}
	if len(all) != 6 {
		t.Fatalf("Expected 6 ids accounted for, got %v", all)
	}

	saved, err := ReadStats(opts.StatsPath)
	if err != nil {
		t.Fatalf("Error reading stats: %v", err)
	}
	if saved.RunID != stats.RunID || !reflect.DeepEqual(saved.NotFoundIDs, stats.NotFoundIDs) {
		t.Fatalf("Saved stats differ: %+v vs %+v", saved, stats)
	}

	opts.Store.Reset = false
	db, err := store.Open(context.Background(), opts.Store)
	if err != nil {
		t.Fatalf("Error opening store: %v", err)
	}
	defer db.Close()
	snippets, err := db.Snippets(context.Background(), "1")
	if err != nil {
		t.Fatalf("Error reading snippets: %v", err)
	}
	exp := "Sponges are animals that live in water." + snippet.Marker + " They filter."
	if len(snippets) != 1 || snippets[0].Text != exp || snippets[0].Section != "" {
		t.Fatalf("Unexpected snippets %+v", snippets)
	}
}

func TestRunCanceled(t *testing.T) {
	dir := t.TempDir()
	dump := filepath.Join(dir, "dump.xml")
	ids := filepath.Join(dir, "pageids")
	os.WriteFile(dump, []byte(makeDump(testPages)), 0644)
	os.WriteFile(ids, []byte("1\n5\n"), 0644)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	stats, err := Run(ctx, Options{
		DumpPath:   dump,
		PageIDPath: ids,
		MinLen:     1,
		MaxLen:     1000,
		Store:      store.Config{Path: filepath.Join(dir, "chdb.sqlite"), Reset: true},
	})
	if err != nil {
		t.Fatalf("Cancellation is not an error, got %v", err)
	}
	if !stats.Cancelled || len(stats.NotFoundIDs) != 2 || stats.Articles != 0 {
		t.Fatalf("Expected nothing processed, got %+v", stats)
	}
}

func TestReadPageIDs(t *testing.T) {
	ids, err := ReadPageIDs(strings.NewReader("12\n\n  13 \n12\n"))
	if err != nil {
		t.Fatalf("Error reading ids: %v", err)
	}
	if !reflect.DeepEqual(idSet("12", "13"), ids) {
		t.Fatalf("Unexpected ids %v", ids)
	}
}

func manyPages(n int) []testPage {
	var rv []testPage
	for i := 1; i <= n; i++ {
		rv = append(rv, testPage{
			id:    strconv.Itoa(i),
			ns:    "0",
			title: fmt.Sprintf("Article %d", i),
			text: fmt.Sprintf("Lead claim %d.{{cn}}\n== Notes ==\n"+
				"First note.{{cn}} Second note.{{cn}}\n", i),
		})
	}
	return rv
}

type failingWriter struct {
	err error
}

func (w *failingWriter) Setup(ctx context.Context) error { return nil }

func (w *failingWriter) Receive(ctx context.Context, r ResultTask) error {
	return w.err
}

func (w *failingWriter) Done() error { return nil }

// slowParser holds back its second page until ready reports true, so the
// pool's failure is settled before the dispatcher reads on.
type slowParser struct {
	chparse.Parser
	reads int
	ready func() bool
}

func (p *slowParser) Next() (*chparse.Page, error) {
	p.reads++
	if p.reads == 2 {
		deadline := time.Now().Add(5 * time.Second)
		for !p.ready() && time.Now().Before(deadline) {
			time.Sleep(time.Millisecond)
		}
	}
	return p.Parser.Next()
}

func TestDispatcherStopsOnWriterFailure(t *testing.T) {
	boom := errors.New("storage failure")
	pool := workerpool.New[ArticleTask, ResultTask](context.Background(),
		workerpool.Config{Workers: 1, QueueSize: 1},
		func(int) workerpool.Worker[ArticleTask, ResultTask] {
			return &RowParser{MinLen: 1, MaxLen: 1000}
		}, &failingWriter{boom})

	p := &slowParser{
		Parser: newParser(t, makeDump(manyPages(500))),
		ready:  func() bool { return pool.Err() != nil },
	}
	d := &Dispatcher{Pool: pool}
	stats, err := d.Run(context.Background(), p, idSet("1"))
	if !errors.Is(err, boom) {
		t.Fatalf("Expected the writer's error, got %v", err)
	}
	if stats.Pages > 2 {
		t.Fatalf("Expected the run to stop after the failure, read %v pages", stats.Pages)
	}
	if stats.Fatal == "" || stats.Cancelled {
		t.Fatalf("Unexpected stats %+v", stats)
	}
}

func TestDispatcherStopsOnPoolError(t *testing.T) {
	boom := errors.New("disk full")
	pool := &fakePool{}
	pool.onPost = func() { pool.err = boom }
	d := &Dispatcher{Pool: pool}
	stats, err := d.Run(context.Background(), newParser(t, makeDump(testPages)), idSet("1", "5"))
	if !errors.Is(err, boom) {
		t.Fatalf("Expected the pool's error, got %v", err)
	}
	if stats.Pages != 1 || !pool.canceled || pool.done {
		t.Fatalf("Expected the run to stop after page 1, got %+v", stats)
	}
	if !reflect.DeepEqual([]string{"5"}, stats.NotFoundIDs) {
		t.Fatalf("Expected page 5 unread, got %v", stats.NotFoundIDs)
	}
}

type snippetRow struct {
	articleID, section, text string
}

func storedRows(t *testing.T, cfg store.Config) (map[snippetRow]int, int64) {
	t.Helper()
	cfg.Reset = false
	db, err := store.Open(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Error opening store: %v", err)
	}
	defer db.Close()

	snippets, err := db.Snippets(context.Background(), "")
	if err != nil {
		t.Fatalf("Error reading snippets: %v", err)
	}
	rv := map[snippetRow]int{}
	for _, s := range snippets {
		rv[snippetRow{s.ArticleID, s.Section, s.Text}]++
	}
	articles, _, err := db.Counts(context.Background())
	if err != nil {
		t.Fatalf("Error counting: %v", err)
	}
	return rv, articles
}

func TestRunIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	dump := filepath.Join(dir, "dump.xml")
	ids := filepath.Join(dir, "pageids")
	os.WriteFile(dump, []byte(makeDump(manyPages(20))), 0644)
	os.WriteFile(ids, []byte("1\n4\n9\n16\n"), 0644)

	opts := Options{
		DumpPath:   dump,
		PageIDPath: ids,
		MinLen:     1,
		MaxLen:     1000,
		Workers:    3,
		Store:      store.Config{Path: filepath.Join(dir, "chdb.sqlite"), Attempts: 3},
	}

	if _, err := Run(context.Background(), opts); err != nil {
		t.Fatalf("Error on the first run: %v", err)
	}
	first, firstArticles := storedRows(t, opts.Store)
	if len(first) != 12 || firstArticles != 4 {
		t.Fatalf("Expected 4 articles with 12 snippets, got %v and %v", firstArticles, len(first))
	}

	if _, err := Run(context.Background(), opts); err != nil {
		t.Fatalf("Error on the second run: %v", err)
	}
	second, secondArticles := storedRows(t, opts.Store)
	if !reflect.DeepEqual(first, second) || firstArticles != secondArticles {
		t.Fatalf("Rerun changed the database:\n%v\n%v", first, second)
	}
}

// cancelingPool cancels the run once its first task is queued.
type cancelingPool struct {
	*workerpool.Pool[ArticleTask, ResultTask]
	cancel func()
}

func (p *cancelingPool) Post(task ArticleTask) error {
	err := p.Pool.Post(task)
	if err == nil {
		p.cancel()
	}
	return err
}

func TestCancelLeavesConsistentStore(t *testing.T) {
	dir := t.TempDir()
	cfg := store.Config{Path: filepath.Join(dir, "chdb.sqlite"), Reset: true}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	writer := &DatabaseWriter{Store: cfg}
	pool := workerpool.New[ArticleTask, ResultTask](ctx,
		workerpool.Config{Workers: 2, QueueSize: 4},
		func(int) workerpool.Worker[ArticleTask, ResultTask] {
			return &RowParser{MinLen: 1, MaxLen: 1000}
		}, writer)

	requested := idSet()
	for _, p := range manyPages(50) {
		requested[p.id] = struct{}{}
	}
	d := &Dispatcher{Pool: &cancelingPool{pool, cancel}}
	stats, err := d.Run(ctx, newParser(t, makeDump(manyPages(50))), requested)
	if err != nil {
		t.Fatalf("Cancellation is not an error, got %v", err)
	}
	if !stats.Cancelled || stats.Posted != 1 || len(stats.NotFoundIDs) != 49 {
		t.Fatalf("Expected one page in flight at cancel, got %+v", stats)
	}

	db, err := store.Open(context.Background(), store.Config{Path: cfg.Path})
	if err != nil {
		t.Fatalf("Error opening store: %v", err)
	}
	defer db.Close()

	var orphanArticles, orphanSnippets int
	err = db.DB().QueryRow(`SELECT COUNT(*) FROM articles a
		WHERE NOT EXISTS (SELECT 1 FROM snippets s WHERE s.article_id = a.page_id)`).
		Scan(&orphanArticles)
	if err != nil {
		t.Fatalf("Error checking articles: %v", err)
	}
	err = db.DB().QueryRow(`SELECT COUNT(*) FROM snippets s
		WHERE NOT EXISTS (SELECT 1 FROM articles a WHERE a.page_id = s.article_id)`).
		Scan(&orphanSnippets)
	if err != nil {
		t.Fatalf("Error checking snippets: %v", err)
	}
	if orphanArticles != 0 || orphanSnippets != 0 {
		t.Fatalf("Found %v articles without snippets and %v snippets without articles",
			orphanArticles, orphanSnippets)
	}

	articles, snippets, err := db.Counts(context.Background())
	if err != nil {
		t.Fatalf("Error counting: %v", err)
	}
	if articles != writer.Articles || snippets != writer.Snippets {
		t.Fatalf("Store has %v/%v rows, writer reported %v/%v",
			articles, snippets, writer.Articles, writer.Snippets)
	}
}
