// Package policystore looks up policy records in a DynamoDB table keyed by
// policy number.
package policystore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"claims-agent/internal/domain"
)

// ErrPolicyNotFound is returned when the table has no item for the policy.
var ErrPolicyNotFound = errors.New("policystore: policy not found")

// dynamodbAPI is the minimal DynamoDB interface required by Client.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
}

type Client struct {
	api       dynamodbAPI
	tableName string
}

func New(api dynamodbAPI, tableName string) (*Client, error) {
	if api == nil {
		return nil, errors.New("policystore: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("policystore: table name must not be empty")
	}
	return &Client{api: api, tableName: tableName}, nil
}

// GetPolicyInformation reads the policy item with a strongly consistent read.
func (c *Client) GetPolicyInformation(ctx context.Context, policyNumber string) (*domain.PolicyInformation, error) {
	policyNumber = strings.TrimSpace(policyNumber)
	if policyNumber == "" {
		return nil, errors.New("policystore: policy number must not be empty")
	}

	out, err := c.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(c.tableName),
		Key: map[string]types.AttributeValue{
			"policyNumber": &types.AttributeValueMemberS{Value: policyNumber},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("policystore: get item: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return nil, ErrPolicyNotFound
	}
	return itemToPolicy(out.Item)
}

func itemToPolicy(item map[string]types.AttributeValue) (*domain.PolicyInformation, error) {
	var p domain.PolicyInformation
	var err error

	if p.PolicyNumber, err = requiredStr(item, "policyNumber"); err != nil {
		return nil, err
	}
	if p.PolicyHolderName, err = requiredStr(item, "policyHolderName"); err != nil {
		return nil, err
	}
	if p.PolicyStartDate, err = requiredStr(item, "policyStartDate"); err != nil {
		return nil, err
	}
	if p.PolicyEndDate, err = requiredStr(item, "policyEndDate"); err != nil {
		return nil, err
	}
	if p.CoverageDetails, err = requiredStr(item, "coverageDetails"); err != nil {
		return nil, err
	}
	if p.PremiumAmount, err = numAttr(item, "premiumAmount"); err != nil {
		return nil, err
	}

	p.PolicyType = optionalStr(item, "policyType")
	p.BeneficiaryName = optionalStr(item, "beneficiaryName")
	p.ContactInformation = optionalStr(item, "contactInformation")
	p.VehicleMake = optionalStr(item, "vehicleMake")
	p.VehicleModel = optionalStr(item, "vehicleModel")
	p.VehicleVIN = optionalStr(item, "vehicleVin")
	if _, ok := item["vehicleYear"]; ok {
		year, err := numAttr(item, "vehicleYear")
		if err != nil {
			return nil, err
		}
		p.VehicleYear = int(year)
	}
	return &p, nil
}

func requiredStr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("policystore: missing attribute %q", key)
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("policystore: attribute %q is not a string", key)
	}
	return s.Value, nil
}

func optionalStr(item map[string]types.AttributeValue, key string) string {
	if s, ok := item[key].(*types.AttributeValueMemberS); ok {
		return s.Value
	}
	return ""
}

func numAttr(item map[string]types.AttributeValue, key string) (float64, error) {
	v, ok := item[key]
	if !ok {
		return 0, fmt.Errorf("policystore: missing attribute %q", key)
	}
	n, ok := v.(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("policystore: attribute %q is not a number", key)
	}
	f, err := strconv.ParseFloat(n.Value, 64)
	if err != nil {
		return 0, fmt.Errorf("policystore: parse attribute %q: %w", key, err)
	}
	return f, nil
}
