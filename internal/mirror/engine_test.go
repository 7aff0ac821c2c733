package mirror

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vdavid/listbridge/internal/models"
	"github.com/vdavid/listbridge/internal/notes"
)

const stateKey = "ffmpeg-devel@ffmpeg.org <-> ffgithub"

// fakeMirror serves one patch per commit; commits[0] is the oldest.
type fakeMirror struct {
	commits []string
	patches map[string][]string
	logErr  error
}

func (m *fakeMirror) ResolveCommit(_ context.Context, rev string) (string, bool, error) {
	if rev == "master" {
		return m.commits[len(m.commits)-1], true, nil
	}
	for _, c := range m.commits {
		if c == rev {
			return c, true, nil
		}
	}
	return "", false, nil
}

func (m *fakeMirror) LogPatch(_ context.Context, from, to string, fn func(string) error) error {
	if m.logErr != nil {
		return m.logErr
	}
	started := false
	for _, c := range m.commits {
		if started {
			for _, line := range m.patches[c] {
				if err := fn(line); err != nil {
					return err
				}
			}
		}
		if c == from {
			started = true
		}
		if c == to {
			break
		}
	}
	return nil
}

// add appends a commit whose diff adds raw as a new file.
func (m *fakeMirror) add(raw string) {
	lines := strings.SplitAfter(raw, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	commit := fmt.Sprintf("c%d", len(m.commits))
	patch := []string{
		"commit " + commit + "\n",
		"\n",
		"diff --git a/m b/m\n",
		"--- /dev/null\n",
		"+++ b/m\n",
		fmt.Sprintf("@@ -0,0 +1,%d @@\n", len(lines)),
	}
	for _, line := range lines {
		patch = append(patch, "+"+line)
	}
	m.commits = append(m.commits, commit)
	if m.patches == nil {
		m.patches = map[string][]string{}
	}
	m.patches[commit] = patch
}

type staticCheckpoint struct {
	commit string
	err    error
}

func (c staticCheckpoint) Resolve(_ context.Context, lastKnown string) (string, error) {
	if c.err != nil {
		return "", c.err
	}
	if lastKnown != "" {
		return lastKnown, nil
	}
	return c.commit, nil
}

type forgeCall struct {
	Method    string
	PRURL     string
	CommentID int64
	Commit    string
	Body      string
}

type fakeForge struct {
	calls    []forgeCall
	nextID   int64
	failPost error
	failCc   error
}

func (f *fakeForge) AddComment(_ context.Context, prURL, body string) error {
	f.calls = append(f.calls, forgeCall{Method: "AddComment", PRURL: prURL, Body: body})
	return f.failPost
}

func (f *fakeForge) AddReply(_ context.Context, prURL string, commentID int64, body string) error {
	f.calls = append(f.calls, forgeCall{Method: "AddReply", PRURL: prURL, CommentID: commentID, Body: body})
	return f.failPost
}

func (f *fakeForge) AddCommitComment(_ context.Context, prURL, commit, body string) (int64, error) {
	f.calls = append(f.calls, forgeCall{Method: "AddCommitComment", PRURL: prURL, Commit: commit, Body: body})
	return f.nextID, f.failPost
}

func (f *fakeForge) AddCc(_ context.Context, prURL, address string) error {
	f.calls = append(f.calls, forgeCall{Method: "AddCc", PRURL: prURL, Body: address})
	return f.failCc
}

func (f *fakeForge) posts() []forgeCall {
	var out []forgeCall
	for _, c := range f.calls {
		if c.Method != "AddCc" {
			out = append(out, c)
		}
	}
	return out
}

func mail(id, refs, body string) string {
	raw := "From: Jane Doe <jane@example.com>\nTo: ffmpeg-devel@ffmpeg.org\nSubject: Re: [PATCH] x\nMessage-ID: <" + id + ">\n"
	if refs != "" {
		raw += "In-Reply-To: " + strings.Fields(refs)[0] + "\nReferences: " + refs + "\n"
	}
	return raw + "\n" + body + "\n"
}

var attribution = Attribution{
	ListName:       "FFmpeg",
	ArchiveURL:     "https://master.gitmailbox.com/ffmpegdev/",
	ReplyToThisURL: "https://github.com/ffstaging/FFmpeg/wiki/Reply-To-This",
}

const pr = "https://github.com/ffstaging/FFmpeg/pull/42"

func newEngine(mirror *fakeMirror, store notes.Store, f *fakeForge) *Engine {
	return &Engine{
		Mirror:      mirror,
		Checkpoint:  staticCheckpoint{commit: "c0"},
		Store:       store,
		Forge:       f,
		Attribution: attribution,
		Branch:      "master",
		StateKey:    stateKey,
	}
}

func seed(t *testing.T, store notes.Store, records ...models.MirrorRecord) {
	t.Helper()
	for _, r := range records {
		require.NoError(t, store.Set(context.Background(), r.MessageID, r, false))
	}
}

func TestRunRepliesToKnownComment(t *testing.T) {
	ctx := context.Background()
	mirror := &fakeMirror{}
	mirror.add(mail("base@example.com", "", "bootstrap"))
	mirror.add(mail("reply@example.com", "<cover@example.com>", "Looks good to me."))

	store := notes.NewMemoryStore()
	seed(t, store, models.MirrorRecord{MessageID: "cover@example.com", PullRequestURL: pr, IssueCommentID: 7})
	f := &fakeForge{}

	result, err := newEngine(mirror, store, f).Run(ctx, nil)
	require.NoError(t, err)

	assert.True(t, result.Advanced)
	assert.Equal(t, 1, result.Dispatched)

	posts := f.posts()
	require.Len(t, posts, 1)
	assert.Equal(t, "AddReply", posts[0].Method)
	assert.Equal(t, pr, posts[0].PRURL)
	assert.Equal(t, int64(7), posts[0].CommentID)
	assert.Equal(t, "[On the FFmpeg mailing list](https://master.gitmailbox.com/ffmpegdev/reply@example.com), "+
		"Jane Doe wrote ([reply to this](https://github.com/ffstaging/FFmpeg/wiki/Reply-To-This)):\n\n"+
		"``````````\nLooks good to me.\n``````````\n", posts[0].Body)

	record, err := notes.Get[models.MirrorRecord](ctx, store, "reply@example.com")
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, models.MirrorRecord{MessageID: "reply@example.com", PullRequestURL: pr, IssueCommentID: 7}, *record)

	state, err := notes.Get[models.MirrorState](ctx, store, stateKey)
	require.NoError(t, err)
	assert.Equal(t, "c1", state.LatestRevision)

	assert.Contains(t, f.calls, forgeCall{Method: "AddCc", PRURL: pr, Body: "Jane Doe <jane@example.com>"})
}

func TestRunIsIdempotent(t *testing.T) {
	ctx := context.Background()
	mirror := &fakeMirror{}
	mirror.add(mail("base@example.com", "", "bootstrap"))
	mirror.add(mail("reply@example.com", "<cover@example.com>", "ok"))

	store := notes.NewMemoryStore()
	seed(t, store, models.MirrorRecord{MessageID: "cover@example.com", PullRequestURL: pr, IssueCommentID: 7})
	f := &fakeForge{}
	engine := newEngine(mirror, store, f)

	_, err := engine.Run(ctx, nil)
	require.NoError(t, err)
	callsAfterFirst := len(f.calls)

	result, err := engine.Run(ctx, nil)
	require.NoError(t, err)
	assert.False(t, result.Advanced)
	assert.Equal(t, "c1", result.To)
	assert.Len(t, f.calls, callsAfterFirst)
}

func TestRunSkipsHandledMessagesOnRetry(t *testing.T) {
	ctx := context.Background()
	mirror := &fakeMirror{}
	mirror.add(mail("base@example.com", "", "bootstrap"))
	mirror.add(mail("reply@example.com", "<cover@example.com>", "ok"))

	store := notes.NewMemoryStore()
	seed(t, store,
		models.MirrorRecord{MessageID: "cover@example.com", PullRequestURL: pr, IssueCommentID: 7},
		// Posted by a run that crashed before saving the checkpoint.
		models.MirrorRecord{MessageID: "reply@example.com", PullRequestURL: pr, IssueCommentID: 7},
	)
	f := &fakeForge{}

	result, err := newEngine(mirror, store, f).Run(ctx, nil)
	require.NoError(t, err)
	assert.True(t, result.Advanced)
	assert.Equal(t, 0, result.Dispatched)
	assert.Equal(t, 1, result.Skipped)
	assert.Empty(t, f.calls)
}

func TestRunDispatchPaths(t *testing.T) {
	tests := []struct {
		name      string
		refs      string
		records   []models.MirrorRecord
		expected  forgeCall
		newRecord models.MirrorRecord
	}{
		{
			name:     "commit comment records the new id",
			refs:     "<patch.1@example.com>",
			records:  []models.MirrorRecord{{MessageID: "patch.1@example.com", PullRequestURL: pr, OriginalCommit: "abc123"}},
			expected: forgeCall{Method: "AddCommitComment", PRURL: pr, Commit: "abc123"},
			newRecord: models.MirrorRecord{
				MessageID: "new@example.com", PullRequestURL: pr, OriginalCommit: "abc123", IssueCommentID: 555,
			},
		},
		{
			name:      "cover letter never contributes a commit",
			refs:      "<pull.42.ffstaging.FFmpeg@example.com>",
			records:   []models.MirrorRecord{{MessageID: "pull.42.ffstaging.FFmpeg@example.com", PullRequestURL: pr, OriginalCommit: "tip999"}},
			expected:  forgeCall{Method: "AddComment", PRURL: pr},
			newRecord: models.MirrorRecord{MessageID: "new@example.com", PullRequestURL: pr},
		},
		{
			name: "later references enrich the first match",
			refs: "<pull.42.ffstaging.FFmpeg@example.com> <patch.1@example.com> <reply.1@example.com>",
			records: []models.MirrorRecord{
				{MessageID: "pull.42.ffstaging.FFmpeg@example.com", PullRequestURL: pr},
				{MessageID: "patch.1@example.com", PullRequestURL: pr, OriginalCommit: "abc123"},
				{MessageID: "reply.1@example.com", PullRequestURL: pr, OriginalCommit: "abc123", IssueCommentID: 9},
			},
			expected:  forgeCall{Method: "AddReply", PRURL: pr, CommentID: 9},
			newRecord: models.MirrorRecord{MessageID: "new@example.com", PullRequestURL: pr, OriginalCommit: "abc123", IssueCommentID: 9},
		},
		{
			name: "first pull request is kept while other records fill missing ids",
			refs: "<patch.1@example.com> <other@example.com>",
			records: []models.MirrorRecord{
				{MessageID: "patch.1@example.com", PullRequestURL: pr},
				{MessageID: "other@example.com", PullRequestURL: "https://github.com/ffstaging/FFmpeg/pull/1", OriginalCommit: "c1", IssueCommentID: 3},
			},
			expected:  forgeCall{Method: "AddReply", PRURL: pr, CommentID: 3},
			newRecord: models.MirrorRecord{MessageID: "new@example.com", PullRequestURL: pr, OriginalCommit: "c1", IssueCommentID: 3},
		},
		{
			name: "filled fields are never overwritten",
			refs: "<patch.1@example.com> <other@example.com>",
			records: []models.MirrorRecord{
				{MessageID: "patch.1@example.com", PullRequestURL: pr, OriginalCommit: "abc123", IssueCommentID: 9},
				{MessageID: "other@example.com", PullRequestURL: "https://github.com/ffstaging/FFmpeg/pull/1", OriginalCommit: "c1", IssueCommentID: 3},
			},
			expected:  forgeCall{Method: "AddReply", PRURL: pr, CommentID: 9},
			newRecord: models.MirrorRecord{MessageID: "new@example.com", PullRequestURL: pr, OriginalCommit: "abc123", IssueCommentID: 9},
		},
		{
			name: "records without a pull request are ignored",
			refs: "<lonely@example.com> <patch.1@example.com>",
			records: []models.MirrorRecord{
				{MessageID: "lonely@example.com"},
				{MessageID: "patch.1@example.com", PullRequestURL: pr, IssueCommentID: 4},
			},
			expected:  forgeCall{Method: "AddReply", PRURL: pr, CommentID: 4},
			newRecord: models.MirrorRecord{MessageID: "new@example.com", PullRequestURL: pr, IssueCommentID: 4},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			mirror := &fakeMirror{}
			mirror.add(mail("base@example.com", "", "bootstrap"))
			mirror.add(mail("new@example.com", tt.refs, "comment"))

			store := notes.NewMemoryStore()
			seed(t, store, tt.records...)
			f := &fakeForge{nextID: 555}

			result, err := newEngine(mirror, store, f).Run(ctx, nil)
			require.NoError(t, err)
			assert.Equal(t, 1, result.Dispatched)

			posts := f.posts()
			require.Len(t, posts, 1)
			posts[0].Body = ""
			assert.Equal(t, tt.expected, posts[0])

			record, err := notes.Get[models.MirrorRecord](ctx, store, "new@example.com")
			require.NoError(t, err)
			require.NotNil(t, record)
			assert.Equal(t, tt.newRecord, *record)
		})
	}
}

func TestRunSkips(t *testing.T) {
	ctx := context.Background()
	other := "https://github.com/ffstaging/FFmpeg/pull/1"

	mirror := &fakeMirror{}
	mirror.add(mail("base@example.com", "", "bootstrap"))
	mirror.add(mail("unrouted@example.com", "<unknown@example.com>", "nobody knows this thread"))
	mirror.add("this is not a mail\n")
	mirror.add(mail("filtered@example.com", "<other@example.com>", "filtered"))
	mirror.add(mail("kept@example.com", "<cover@example.com>", "kept"))

	store := notes.NewMemoryStore()
	seed(t, store,
		models.MirrorRecord{MessageID: "cover@example.com", PullRequestURL: pr},
		models.MirrorRecord{MessageID: "other@example.com", PullRequestURL: other},
	)
	f := &fakeForge{}

	onlyPR42 := regexp.MustCompile(`/pull/42$`)
	result, err := newEngine(mirror, store, f).Run(ctx, onlyPR42.MatchString)
	require.NoError(t, err)

	assert.True(t, result.Advanced)
	assert.Equal(t, 1, result.Dispatched)
	assert.Equal(t, 2, result.Skipped)
	assert.Equal(t, 1, result.Failed)

	posts := f.posts()
	require.Len(t, posts, 1)
	assert.Contains(t, posts[0].Body, "(https://master.gitmailbox.com/ffmpegdev/kept@example.com)")

	for _, id := range []string{"unrouted@example.com", "filtered@example.com"} {
		record, err := notes.Get[models.MirrorRecord](ctx, store, id)
		require.NoError(t, err)
		assert.Nil(t, record, id)
	}
}

func TestRunLaterMessagesSeeEarlierOnes(t *testing.T) {
	ctx := context.Background()
	mirror := &fakeMirror{}
	mirror.add(mail("base@example.com", "", "bootstrap"))
	mirror.add(mail("first@example.com", "<patch.1@example.com>", "first"))
	mirror.add(mail("second@example.com", "<first@example.com>", "second"))

	store := notes.NewMemoryStore()
	seed(t, store, models.MirrorRecord{MessageID: "patch.1@example.com", PullRequestURL: pr, OriginalCommit: "abc123"})
	f := &fakeForge{nextID: 31}

	_, err := newEngine(mirror, store, f).Run(ctx, nil)
	require.NoError(t, err)

	posts := f.posts()
	require.Len(t, posts, 2)
	assert.Equal(t, "AddCommitComment", posts[0].Method)
	assert.Equal(t, "AddReply", posts[1].Method)
	assert.Equal(t, int64(31), posts[1].CommentID)
}

func TestRunFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("checkpoint errors are fatal", func(t *testing.T) {
		mirror := &fakeMirror{}
		mirror.add(mail("base@example.com", "", "x"))
		boom := errors.New("no anchor")
		engine := newEngine(mirror, notes.NewMemoryStore(), &fakeForge{})
		engine.Checkpoint = staticCheckpoint{err: boom}

		_, err := engine.Run(ctx, nil)
		assert.ErrorIs(t, err, boom)
	})

	t.Run("stream errors leave the checkpoint alone", func(t *testing.T) {
		mirror := &fakeMirror{}
		mirror.add(mail("base@example.com", "", "x"))
		mirror.add(mail("next@example.com", "", "y"))
		mirror.logErr = errors.New("git died")
		store := notes.NewMemoryStore()
		require.NoError(t, store.Set(ctx, stateKey, models.MirrorState{LatestRevision: "c0"}, true))

		_, err := newEngine(mirror, store, &fakeForge{}).Run(ctx, nil)
		require.Error(t, err)

		state, err := notes.Get[models.MirrorState](ctx, store, stateKey)
		require.NoError(t, err)
		assert.Equal(t, "c0", state.LatestRevision)
	})

	t.Run("failed posts are not recorded", func(t *testing.T) {
		mirror := &fakeMirror{}
		mirror.add(mail("base@example.com", "", "x"))
		mirror.add(mail("reply@example.com", "<cover@example.com>", "y"))
		store := notes.NewMemoryStore()
		seed(t, store, models.MirrorRecord{MessageID: "cover@example.com", PullRequestURL: pr})
		f := &fakeForge{failPost: errors.New("rate limited")}

		result, err := newEngine(mirror, store, f).Run(ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, 1, result.Failed)

		record, err := notes.Get[models.MirrorRecord](ctx, store, "reply@example.com")
		require.NoError(t, err)
		assert.Nil(t, record)
	})

	t.Run("failed Cc still records the message", func(t *testing.T) {
		mirror := &fakeMirror{}
		mirror.add(mail("base@example.com", "", "x"))
		mirror.add(mail("reply@example.com", "<cover@example.com>", "y"))
		store := notes.NewMemoryStore()
		seed(t, store, models.MirrorRecord{MessageID: "cover@example.com", PullRequestURL: pr})
		f := &fakeForge{failCc: errors.New("forbidden")}

		result, err := newEngine(mirror, store, f).Run(ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, 1, result.Dispatched)

		record, err := notes.Get[models.MirrorRecord](ctx, store, "reply@example.com")
		require.NoError(t, err)
		assert.NotNil(t, record)
	})
}

func TestAttributionHeader(t *testing.T) {
	tests := []struct {
		name     string
		from     string
		expected string
	}{
		{name: "name and address", from: "Jane Doe <jane@example.com>", expected: "Jane Doe wrote"},
		{name: "bare address", from: "jane@example.com", expected: "jane@example.com wrote"},
		{name: "no sender", from: "", expected: "Somebody wrote"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := attribution.Header("id@example.com", tt.from)
			assert.Contains(t, got, ", "+tt.expected+" ([reply to this]")
			assert.True(t, strings.HasPrefix(got, "[On the FFmpeg mailing list](https://master.gitmailbox.com/ffmpegdev/id@example.com)"))
			assert.True(t, strings.HasSuffix(got, "):\n\n"))
		})
	}

	t.Run("archive URL without trailing slash", func(t *testing.T) {
		a := Attribution{ListName: "Git", ArchiveURL: "https://lore.kernel.org/git", ReplyToThisURL: "https://example.com/help"}
		assert.Equal(t, "[On the Git mailing list](https://lore.kernel.org/git/x@y), Somebody wrote ([reply to this](https://example.com/help)):\n\n",
			a.Header("x@y", ""))
	})
}
