package engine

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/organizations"
	orgtypes "github.com/aws/aws-sdk-go-v2/service/organizations/types"

	"github.com/kosty-cloud/kosty/internal/models"
)

// orgAccount is one account in the scan scope. RoleARN is empty for the
// management account, which uses the ambient credentials.
type orgAccount struct {
	ID      string
	Name    string
	RoleARN string
}

// OrganizationsAPI is the slice of AWS Organizations used for member
// discovery.
type OrganizationsAPI interface {
	ListAccounts(ctx context.Context, params *organizations.ListAccountsInput, optFns ...func(*organizations.Options)) (*organizations.ListAccountsOutput, error)
}

// orgLister lists the active member accounts visible to a management
// session.
type orgLister interface {
	List(ctx context.Context, cfg aws.Config) ([]orgtypes.Account, error)
}

type organizationsLister struct{}

func (organizationsLister) List(ctx context.Context, cfg aws.Config) ([]orgtypes.Account, error) {
	client := organizations.NewFromConfig(cfg)
	var accounts []orgtypes.Account
	paginator := organizations.NewListAccountsPaginator(client, &organizations.ListAccountsInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing accounts: %w", err)
		}
		accounts = append(accounts, page.Accounts...)
	}
	return accounts, nil
}

// listMemberAccounts expands the scan scope to every active organization
// member. The management account keeps ambient credentials; every other
// account gets the cross-account role ARN built from opts.OrgRole. Suspended
// and pending accounts are skipped.
func (e *Engine) listMemberAccounts(ctx context.Context, adminID string, opts Options) ([]orgAccount, error) {
	cfg, err := e.sessions.SessionFor(ctx, models.ScanTarget{AccountID: adminID, Region: globalRegion})
	if err != nil {
		return nil, err
	}
	raw, err := e.orgs.List(ctx, cfg)
	if err != nil {
		return nil, err
	}

	var out []orgAccount
	for _, acct := range raw {
		if acct.Status != orgtypes.AccountStatusActive {
			continue
		}
		id := aws.ToString(acct.Id)
		member := orgAccount{ID: id, Name: aws.ToString(acct.Name)}
		if id != adminID {
			member.RoleARN = fmt.Sprintf("arn:aws:iam::%s:role/%s", id, opts.OrgRole)
		}
		out = append(out, member)
	}
	return out, nil
}
