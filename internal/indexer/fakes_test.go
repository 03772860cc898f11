package indexer

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/guregu/null"

	"github.com/steemit/hivemind-indexer/internal/idcache"
	"github.com/steemit/hivemind-indexer/internal/models"
	"github.com/steemit/hivemind-indexer/internal/steem"
)

var errStoreDown = errors.New("store unavailable")

// fakePost mirrors the hive_posts columns the engines touch
type fakePost struct {
	id             int64
	author         string
	permlink       string
	parentID       int64
	depth          int16
	category       string
	communityID    int64
	counterDeleted int
	children       int
	muted          bool
	options        *models.PostOptions
	payout         models.PayoutUpdate
}

// fakePostStore implements PostStore and the id lookup in memory with the
// semantics of the stored procedures
type fakePostStore struct {
	posts       []*fakePost
	accounts    map[string]int64
	communities map[string]int64
	lookups     int
	batchLookup int
	payoutCalls [][]models.PayoutUpdate
	failProcess bool
}

func newFakePostStore() *fakePostStore {
	return &fakePostStore{accounts: map[string]int64{}, communities: map[string]int64{}}
}

func (s *fakePostStore) accountID(name string) int64 {
	if id, ok := s.accounts[name]; ok {
		return id
	}
	id := int64(len(s.accounts) + 100)
	s.accounts[name] = id
	return id
}

func (s *fakePostStore) live(author, permlink string) *fakePost {
	for _, p := range s.posts {
		if p.author == author && p.permlink == permlink && p.counterDeleted == 0 {
			return p
		}
	}
	return nil
}

func (s *fakePostStore) byID(id int64) *fakePost {
	for _, p := range s.posts {
		if p.id == id {
			return p
		}
	}
	return nil
}

func (s *fakePostStore) liveCount(author, permlink string) int {
	n := 0
	for _, p := range s.posts {
		if p.author == author && p.permlink == permlink && p.counterDeleted == 0 {
			n++
		}
	}
	return n
}

func (s *fakePostStore) PostID(_ context.Context, author, permlink string) (int64, error) {
	s.lookups++
	if p := s.live(author, permlink); p != nil {
		return p.id, nil
	}
	return 0, nil
}

func (s *fakePostStore) PostIDs(_ context.Context, refs []idcache.Ref) ([]idcache.Ref, error) {
	s.batchLookup++
	var out []idcache.Ref
	for _, r := range refs {
		if p := s.live(r.Author, r.Permlink); p != nil {
			out = append(out, idcache.Ref{Author: r.Author, Permlink: r.Permlink, ID: p.id})
		}
	}
	return out, nil
}

func (s *fakePostStore) ProcessPost(_ context.Context, op *steem.CommentOp, _ time.Time) (*models.PostResult, error) {
	if s.failProcess {
		return nil, errStoreDown
	}

	if p := s.live(op.Author, op.Permlink); p != nil {
		return s.result(p, true), nil
	}

	p := &fakePost{
		id:       int64(len(s.posts) + 1),
		author:   op.Author,
		permlink: op.Permlink,
		category: op.ParentPermlink,
	}
	if op.IsReply() {
		parent := s.live(op.ParentAuthor, op.ParentPermlink)
		if parent == nil {
			return nil, nil
		}
		p.parentID = parent.id
		p.depth = parent.depth + 1
		p.category = parent.category
		p.communityID = parent.communityID
	} else if id, ok := s.communities[op.ParentPermlink]; ok {
		p.communityID = id
	}
	s.posts = append(s.posts, p)

	return s.result(p, false), nil
}

func (s *fakePostStore) result(p *fakePost, edited bool) *models.PostResult {
	res := &models.PostResult{
		ID:           p.id,
		AuthorID:     s.accountID(p.author),
		PostCategory: p.category,
		IsValid:      true,
		IsMuted:      p.muted,
		Depth:        p.depth,
		IsEdited:     edited,
	}
	if p.parentID != 0 {
		res.ParentID = null.IntFrom(p.parentID)
	}
	if p.communityID != 0 {
		res.CommunityID = null.IntFrom(p.communityID)
	}
	return res
}

func (s *fakePostStore) DeletePost(_ context.Context, author, permlink string) (*models.DeleteResult, error) {
	p := s.live(author, permlink)
	if p == nil {
		return nil, nil
	}
	maxCounter := 0
	for _, q := range s.posts {
		if q.author == author && q.permlink == permlink && q.counterDeleted > maxCounter {
			maxCounter = q.counterDeleted
		}
	}
	p.counterDeleted = maxCounter + 1
	return &models.DeleteResult{ID: p.id, Depth: p.depth}, nil
}

func (s *fakePostStore) AdjustChildren(_ context.Context, childID int64, delta int) error {
	child := s.byID(childID)
	if child == nil || child.parentID == 0 {
		return nil
	}
	parent := s.byID(child.parentID)
	n := parent.children
	if n == models.ChildrenOverflow {
		n = 0
	}
	n += delta
	if n < 0 {
		n = 0
	}
	parent.children = n
	return nil
}

func (s *fakePostStore) SetMuted(_ context.Context, postID int64, muted bool) error {
	s.byID(postID).muted = muted
	return nil
}

func (s *fakePostStore) UpdateOptions(_ context.Context, opts *models.PostOptions) error {
	s.byID(opts.PostID).options = opts
	return nil
}

func (s *fakePostStore) ApplyPayouts(_ context.Context, updates []models.PayoutUpdate) error {
	batch := append([]models.PayoutUpdate(nil), updates...)
	s.payoutCalls = append(s.payoutCalls, batch)
	for _, u := range batch {
		s.byID(u.PostID).payout = u
	}
	return nil
}

type fakeDataWriter struct {
	data map[int64]*models.PostData
}

func (w *fakeDataWriter) StoreData(_ context.Context, data *models.PostData) error {
	if w.data == nil {
		w.data = map[int64]*models.PostData{}
	}
	w.data[data.ID] = data
	return nil
}

type fakeTagWriter struct {
	tags map[int64][]string
}

func (w *fakeTagWriter) AddTag(_ context.Context, postID int64, tag string) error {
	if w.tags == nil {
		w.tags = map[int64][]string{}
	}
	for _, t := range w.tags[postID] {
		if t == tag {
			return nil
		}
	}
	w.tags[postID] = append(w.tags[postID], tag)
	return nil
}

type fakeFeed struct {
	entries map[int64]int64
}

func (f *fakeFeed) Insert(_ context.Context, postID, accountID int64, _ time.Time) error {
	if f.entries == nil {
		f.entries = map[int64]int64{}
	}
	f.entries[postID] = accountID
	return nil
}

func (f *fakeFeed) Delete(_ context.Context, postID int64) error {
	delete(f.entries, postID)
	return nil
}

type fakePolicy struct {
	denied map[string]bool
}

func (p *fakePolicy) IsPostValid(_ context.Context, _ int64, op *steem.CommentOp) (bool, error) {
	return !p.denied[op.Author], nil
}

type fakeNotificationStore struct {
	created []*models.Notification
	err     error
}

// Create mirrors hive_notifs_ux1: a notification for the same event is
// dropped.
func (s *fakeNotificationStore) Create(_ context.Context, notif *models.Notification) error {
	if s.err != nil {
		return s.err
	}
	for _, n := range s.created {
		if n.Type == notif.Type && n.CreatedAt.Equal(notif.CreatedAt) &&
			n.SrcID.Int64 == notif.SrcID.Int64 && n.DstID.Int64 == notif.DstID.Int64 &&
			n.CommunityID.Int64 == notif.CommunityID.Int64 && n.PostID.Int64 == notif.PostID.Int64 {
			return nil
		}
	}
	s.created = append(s.created, notif)
	return nil
}

// storedVote is a hive_votes row keyed by names
type storedVote struct {
	weight      int64
	rshares     int64
	votePercent int
	lastUpdate  time.Time
	numChanges  int
	blockNum    int64
	isEffective bool
}

// fakeVoteStore applies the ordered upsert merge rules in memory
type fakeVoteStore struct {
	rows       map[voteKey]storedVote
	deleted    map[string]bool
	failUpsert int // fail the n-th UpsertVotes call, 1-based
	failBegin  bool
	failSave   bool
	blocks     *fakeBlockStore
	upserts    int
	batches    []int
	commits    int
	rollbacks  int
	onUpsert   func()
}

func newFakeVoteStore() *fakeVoteStore {
	return &fakeVoteStore{rows: map[voteKey]storedVote{}, deleted: map[string]bool{}, blocks: &fakeBlockStore{}}
}

func (s *fakeVoteStore) Begin(context.Context) (VoteTx, error) {
	if s.failBegin {
		return nil, errStoreDown
	}
	return &fakeVoteTx{store: s}, nil
}

type fakeVoteTx struct {
	store   *fakeVoteStore
	staged  []models.VoteRow
	headers []*models.Block
}

func (tx *fakeVoteTx) UpsertVotes(_ context.Context, rows []models.VoteRow) error {
	s := tx.store
	s.upserts++
	if s.onUpsert != nil {
		s.onUpsert()
	}
	if s.failUpsert == s.upserts {
		return errStoreDown
	}
	s.batches = append(s.batches, len(rows))
	tx.staged = append(tx.staged, rows...)
	return nil
}

func (tx *fakeVoteTx) SaveBlocks(_ context.Context, blocks []*models.Block) error {
	if tx.store.failSave {
		return errStoreDown
	}
	tx.headers = append(tx.headers, blocks...)
	return nil
}

func (tx *fakeVoteTx) Commit() error {
	s := tx.store
	s.commits++
	s.blocks.blocks = append(s.blocks.blocks, tx.headers...)
	rows := append([]models.VoteRow(nil), tx.staged...)
	sort.Slice(rows, func(i, j int) bool { return rows[i].OrderID < rows[j].OrderID })

	for _, r := range rows {
		if s.deleted[r.Author+"/"+r.Permlink] {
			continue
		}
		key := voteKey{voter: r.Voter, author: r.Author, permlink: r.Permlink}
		old, exists := s.rows[key]
		if !exists {
			s.rows[key] = storedVote{r.Weight, r.Rshares, r.VotePercent, r.LastUpdate, r.NumChanges, r.BlockNum, r.IsEffective}
			continue
		}
		merged := storedVote{
			weight:      old.weight,
			rshares:     old.rshares,
			votePercent: r.VotePercent,
			lastUpdate:  r.LastUpdate,
			numChanges:  old.numChanges + r.NumChanges + 1,
			blockNum:    r.BlockNum,
			isEffective: old.isEffective || r.IsEffective,
		}
		if r.IsEffective {
			merged.weight = r.Weight
			merged.rshares = r.Rshares
		}
		s.rows[key] = merged
	}
	return nil
}

func (tx *fakeVoteTx) Rollback() error {
	tx.store.rollbacks++
	tx.staged = nil
	tx.headers = nil
	return nil
}

func key(voter, authorPermlink string) voteKey {
	parts := strings.SplitN(authorPermlink, "/", 2)
	return voteKey{voter: voter, author: parts[0], permlink: parts[1]}
}

type fakeAccountStore struct {
	byName map[string]*models.Account
	nextID int64
	err    error
}

func newFakeAccountStore() *fakeAccountStore {
	return &fakeAccountStore{byName: map[string]*models.Account{}, nextID: 1}
}

func (s *fakeAccountStore) GetByName(_ context.Context, name string) (*models.Account, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.byName[name], nil
}

func (s *fakeAccountStore) Create(_ context.Context, account *models.Account) error {
	if s.err != nil {
		return s.err
	}
	if _, ok := s.byName[account.Name]; ok {
		return errors.New("duplicate account " + account.Name)
	}
	account.ID = s.nextID
	s.nextID++
	s.byName[account.Name] = account
	return nil
}

type fakeCommunityStore struct {
	byID  map[int64]*models.Community
	roles map[int64]map[string]int16
	err   error
}

func newFakeCommunityStore() *fakeCommunityStore {
	return &fakeCommunityStore{byID: map[int64]*models.Community{}, roles: map[int64]map[string]int16{}}
}

func (s *fakeCommunityStore) setRole(communityID int64, account string, role int16) {
	if s.roles[communityID] == nil {
		s.roles[communityID] = map[string]int16{}
	}
	s.roles[communityID][account] = role
}

func (s *fakeCommunityStore) GetByID(_ context.Context, id int64) (*models.Community, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.byID[id], nil
}

func (s *fakeCommunityStore) Role(_ context.Context, communityID int64, account string) (int16, error) {
	if s.err != nil {
		return 0, s.err
	}
	return s.roles[communityID][account], nil
}

// Create stores the owner role under the community's own name, the only
// account a fresh community has.
func (s *fakeCommunityStore) Create(_ context.Context, community *models.Community, owner *models.Role) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	if _, ok := s.byID[community.ID]; ok {
		return false, nil
	}
	s.byID[community.ID] = community
	s.setRole(community.ID, community.Name, owner.Role)
	return true, nil
}

type fakeBlockStore struct {
	blocks []*models.Block
	err    error
}

func (s *fakeBlockStore) Head(context.Context) (*models.Block, error) {
	if s.err != nil {
		return nil, s.err
	}
	if len(s.blocks) == 0 {
		return nil, nil
	}
	return s.blocks[len(s.blocks)-1], nil
}
