package steem

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"

	"github.com/steemit/hivemind-indexer/pkg/normalize"
)

// Operation kinds handled by the indexer
const (
	KindComment              = "comment"
	KindDeleteComment        = "delete_comment"
	KindCommentOptions       = "comment_options"
	KindVote                 = "vote"
	KindEffectiveCommentVote = "effective_comment_vote"
	KindCurationReward       = "curation_reward"
	KindAuthorReward         = "author_reward"
	KindCommentReward        = "comment_reward"
	KindCommentPayoutUpdate  = "comment_payout_update"
	KindAccountCreate        = "account_create"
	KindAccountCreateDeleg   = "account_create_with_delegation"
	KindCreateClaimedAccount = "create_claimed_account"
)

// ErrUnknownOperation is returned for operation kinds the indexer ignores
var ErrUnknownOperation = errors.New("unknown operation")

// Operation is a decoded chain operation
type Operation interface {
	Kind() string
}

// ContentRef is implemented by operations that target one post
type ContentRef interface {
	Operation
	ContentKey() (author, permlink string)
}

// CommentOp creates or edits a post or reply
type CommentOp struct {
	ParentAuthor   string `mapstructure:"parent_author"`
	ParentPermlink string `mapstructure:"parent_permlink" validate:"required"`
	Author         string `mapstructure:"author" validate:"required,max=16"`
	Permlink       string `mapstructure:"permlink" validate:"required,max=256"`
	Title          string `mapstructure:"title"`
	Body           string `mapstructure:"body"`
	JSONMetadata   string `mapstructure:"json_metadata"`
	Preview        string `mapstructure:"preview"`
	ImgURL         string `mapstructure:"img_url"`
}

func (*CommentOp) Kind() string { return KindComment }

func (o *CommentOp) ContentKey() (string, string) { return o.Author, o.Permlink }

// IsReply reports whether the comment has a parent post
func (o *CommentOp) IsReply() bool { return o.ParentAuthor != "" }

// DeleteCommentOp soft-deletes a post
type DeleteCommentOp struct {
	Author   string `mapstructure:"author" validate:"required"`
	Permlink string `mapstructure:"permlink" validate:"required"`
}

func (*DeleteCommentOp) Kind() string { return KindDeleteComment }

func (o *DeleteCommentOp) ContentKey() (string, string) { return o.Author, o.Permlink }

// CommentOptionsOp changes payout options. Absent fields decode to nil.
type CommentOptionsOp struct {
	Author               string           `mapstructure:"author" validate:"required"`
	Permlink             string           `mapstructure:"permlink" validate:"required"`
	MaxAcceptedPayout    *normalize.Asset `mapstructure:"max_accepted_payout"`
	PercentSteemDollars  *int             `mapstructure:"percent_steem_dollars" validate:"omitempty,min=0,max=10000"`
	AllowVotes           *bool            `mapstructure:"allow_votes"`
	AllowCurationRewards *bool            `mapstructure:"allow_curation_rewards"`
	Extensions           []interface{}    `mapstructure:"extensions"`
}

func (*CommentOptionsOp) Kind() string { return KindCommentOptions }

func (o *CommentOptionsOp) ContentKey() (string, string) { return o.Author, o.Permlink }

// Beneficiary is one entry of a comment_payout_beneficiaries extension
type Beneficiary struct {
	Account string `mapstructure:"account" json:"account" validate:"required"`
	Weight  int    `mapstructure:"weight" json:"weight" validate:"min=0,max=10000"`
}

// Beneficiaries extracts the beneficiary list from the extensions. Both the
// [0, {...}] and {"type": ..., "value": {...}} encodings are accepted.
func (o *CommentOptionsOp) Beneficiaries() ([]Beneficiary, error) {
	var out []Beneficiary
	for _, ext := range o.Extensions {
		_, value, ok := splitTagged(ext)
		if !ok {
			continue
		}
		body, ok := value.(map[string]interface{})
		if !ok {
			continue
		}
		raw, ok := body["beneficiaries"]
		if !ok {
			continue
		}
		var list []Beneficiary
		if err := decodeInto(raw, &list); err != nil {
			return nil, &DecodeError{Kind: KindCommentOptions, Err: err}
		}
		out = append(out, list...)
	}
	return out, nil
}

// VoteOp is the voter's declared intent
type VoteOp struct {
	Voter    string `mapstructure:"voter" validate:"required"`
	Author   string `mapstructure:"author" validate:"required"`
	Permlink string `mapstructure:"permlink" validate:"required"`
	Weight   int    `mapstructure:"weight" validate:"min=-10000,max=10000"`
}

func (*VoteOp) Kind() string { return KindVote }

func (o *VoteOp) ContentKey() (string, string) { return o.Author, o.Permlink }

// EffectiveCommentVoteOp carries the final weight and rshares of a vote
type EffectiveCommentVoteOp struct {
	Voter           string          `mapstructure:"voter" validate:"required"`
	Author          string          `mapstructure:"author" validate:"required"`
	Permlink        string          `mapstructure:"permlink" validate:"required"`
	Weight          int64           `mapstructure:"weight"`
	Rshares         int64           `mapstructure:"rshares"`
	TotalVoteWeight int64           `mapstructure:"total_vote_weight"`
	PendingPayout   normalize.Asset `mapstructure:"pending_payout"`
}

func (*EffectiveCommentVoteOp) Kind() string { return KindEffectiveCommentVote }

func (o *EffectiveCommentVoteOp) ContentKey() (string, string) { return o.Author, o.Permlink }

// CurationRewardOp credits a curator for a post
type CurationRewardOp struct {
	Curator         string          `mapstructure:"curator" validate:"required"`
	Reward          normalize.Asset `mapstructure:"reward"`
	CommentAuthor   string          `mapstructure:"comment_author" validate:"required"`
	CommentPermlink string          `mapstructure:"comment_permlink" validate:"required"`
}

func (*CurationRewardOp) Kind() string { return KindCurationReward }

func (o *CurationRewardOp) ContentKey() (string, string) { return o.CommentAuthor, o.CommentPermlink }

// AuthorRewardOp splits the author reward by denomination
type AuthorRewardOp struct {
	Author        string          `mapstructure:"author" validate:"required"`
	Permlink      string          `mapstructure:"permlink" validate:"required"`
	SbdPayout     normalize.Asset `mapstructure:"sbd_payout"`
	SteemPayout   normalize.Asset `mapstructure:"steem_payout"`
	VestingPayout normalize.Asset `mapstructure:"vesting_payout"`
}

func (*AuthorRewardOp) Kind() string { return KindAuthorReward }

func (o *AuthorRewardOp) ContentKey() (string, string) { return o.Author, o.Permlink }

// CommentRewardOp carries the settled payout totals of a post
type CommentRewardOp struct {
	Author                 string          `mapstructure:"author" validate:"required"`
	Permlink               string          `mapstructure:"permlink" validate:"required"`
	Payout                 normalize.Asset `mapstructure:"payout"`
	AuthorRewards          int64           `mapstructure:"author_rewards"`
	TotalPayoutValue       normalize.Asset `mapstructure:"total_payout_value"`
	CuratorPayoutValue     normalize.Asset `mapstructure:"curator_payout_value"`
	BeneficiaryPayoutValue normalize.Asset `mapstructure:"beneficiary_payout_value"`
}

func (*CommentRewardOp) Kind() string { return KindCommentReward }

func (o *CommentRewardOp) ContentKey() (string, string) { return o.Author, o.Permlink }

// CommentPayoutUpdateOp marks a post as settled
type CommentPayoutUpdateOp struct {
	Author    string `mapstructure:"author" validate:"required"`
	Permlink  string `mapstructure:"permlink" validate:"required"`
	IsPaidout *bool  `mapstructure:"is_paidout"`
}

func (*CommentPayoutUpdateOp) Kind() string { return KindCommentPayoutUpdate }

func (o *CommentPayoutUpdateOp) ContentKey() (string, string) { return o.Author, o.Permlink }

// Paidout returns the paid-out flag, true when the node omits it
func (o *CommentPayoutUpdateOp) Paidout() bool {
	return o.IsPaidout == nil || *o.IsPaidout
}

// AccountCreateOp covers every operation that registers an account
type AccountCreateOp struct {
	OpKind         string `mapstructure:"-"`
	NewAccountName string `mapstructure:"new_account_name" validate:"required,max=16"`
	Creator        string `mapstructure:"creator"`
}

func (o *AccountCreateOp) Kind() string { return o.OpKind }

// DecodeError reports an operation payload that does not match its type
type DecodeError struct {
	Kind string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("invalid %s operation: %v", e.Kind, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

var factories = map[string]func() Operation{
	KindComment:              func() Operation { return &CommentOp{} },
	KindDeleteComment:        func() Operation { return &DeleteCommentOp{} },
	KindCommentOptions:       func() Operation { return &CommentOptionsOp{} },
	KindVote:                 func() Operation { return &VoteOp{} },
	KindEffectiveCommentVote: func() Operation { return &EffectiveCommentVoteOp{} },
	KindCurationReward:       func() Operation { return &CurationRewardOp{} },
	KindAuthorReward:         func() Operation { return &AuthorRewardOp{} },
	KindCommentReward:        func() Operation { return &CommentRewardOp{} },
	KindCommentPayoutUpdate:  func() Operation { return &CommentPayoutUpdateOp{} },
	KindAccountCreate:        func() Operation { return &AccountCreateOp{OpKind: KindAccountCreate} },
	KindAccountCreateDeleg:   func() Operation { return &AccountCreateOp{OpKind: KindAccountCreateDeleg} },
	KindCreateClaimedAccount: func() Operation { return &AccountCreateOp{OpKind: KindCreateClaimedAccount} },
}

var validate = validator.New()

// OperationName normalizes "comment_operation" to "comment"
func OperationName(name string) string {
	return strings.TrimSuffix(name, "_operation")
}

// DecodeOperation decodes an operation in either the [name, value] or the
// {"type": name, "value": value} encoding. Kinds the indexer does not handle
// return ErrUnknownOperation.
func DecodeOperation(raw interface{}) (Operation, error) {
	name, value, ok := splitTagged(raw)
	if !ok {
		return nil, &DecodeError{Kind: "?", Err: fmt.Errorf("unrecognized operation encoding %T", raw)}
	}

	name = OperationName(name)
	factory, ok := factories[name]
	if !ok {
		return nil, ErrUnknownOperation
	}

	op := factory()
	if err := decodeInto(value, op); err != nil {
		return nil, &DecodeError{Kind: name, Err: err}
	}
	if err := validate.Struct(op); err != nil {
		return nil, &DecodeError{Kind: name, Err: err}
	}

	return op, nil
}

func splitTagged(raw interface{}) (string, interface{}, bool) {
	switch v := raw.(type) {
	case []interface{}:
		if len(v) != 2 {
			return "", nil, false
		}
		switch tag := v[0].(type) {
		case string:
			return tag, v[1], true
		default:
			return fmt.Sprint(tag), v[1], true
		}
	case map[string]interface{}:
		name, ok := v["type"].(string)
		if !ok {
			return "", nil, false
		}
		return name, v["value"], true
	}
	return "", nil, false
}

func decodeInto(input, result interface{}) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       assetHook,
		WeaklyTypedInput: true,
		Result:           result,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(input)
}

var assetType = reflect.TypeOf(normalize.Asset{})

// assetHook turns legacy strings, NAI objects and NAI triples into assets
func assetHook(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
	if to != assetType {
		return data, nil
	}

	switch v := data.(type) {
	case string:
		return normalize.ParseAsset(v)
	case map[string]interface{}:
		return normalize.AssetFromNAI(v)
	case []interface{}:
		if len(v) != 3 {
			return nil, fmt.Errorf("asset triple has %d elements", len(v))
		}
		return normalize.AssetFromNAI(map[string]interface{}{
			"amount":    v[0],
			"precision": v[1],
			"nai":       v[2],
		})
	}
	return data, nil
}
