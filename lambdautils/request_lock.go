package lambdautils

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/client"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
	"github.com/pkg/errors"
)

const (
	defaultTTL       = 300
	defaultRetryWait = 500
	maxAttempts      = 12
)

// RequestLock manages locking of request keys using dynamodb. Keys are
// stored as their sha256 hash and the lock expires after the TTL (seconds)
// has expired.
//
// RetryWait (milliseconds) is used to manage retry backoff times.
type RequestLock struct {
	Region    string `json:"region" yaml:"region"`
	Table     string `json:"table" yaml:"table"`
	TTL       int64  `json:"ttl" yaml:"ttl"`
	RetryWait int64  `json:"retry-wait" yaml:"retry-wait"`

	nowFunc   func() time.Time
	svcFunc   func(client.ConfigProvider) dynamodbiface.DynamoDBAPI
	sleepFunc func(time.Duration)
}

// NewRequestLock returns a new request lock instance to manage dynamodb
// locking.
func NewRequestLock(region string, table string, ttl int64, retry int64) *RequestLock {
	lock := &RequestLock{
		Region:    region,
		Table:     table,
		TTL:       ttl,
		RetryWait: retry,
	}

	lock.defaults()
	return lock
}

// NewRequestLockFromJson returns a new request lock instance configured from
// a json document.
func NewRequestLockFromJson(s string) (*RequestLock, error) {
	lock := new(RequestLock)

	if err := json.Unmarshal([]byte(s), lock); err != nil {
		return nil, errors.Wrap(err, "failed parsing request lock config")
	}

	if lock.Region == "" {
		return nil, errors.New("region is required")
	}

	if lock.Table == "" {
		return nil, errors.New("table is required")
	}

	lock.defaults()
	return lock, nil
}

func (lock *RequestLock) defaults() {
	if lock.TTL == 0 {
		lock.TTL = defaultTTL
	}

	if lock.RetryWait == 0 {
		lock.RetryWait = defaultRetryWait
	}
}

// now is used internally to assist stubs on time.Now() for testing
func (lock *RequestLock) now() time.Time {
	if lock.nowFunc != nil {
		return lock.nowFunc()
	}

	return time.Now()
}

// svc is used internally to assist stubs on dynamodb for testing
func (lock *RequestLock) svc(p client.ConfigProvider) dynamodbiface.DynamoDBAPI {
	if lock.svcFunc != nil {
		return lock.svcFunc(p)
	}

	return dynamodb.New(p)
}

func (lock *RequestLock) sleep(d time.Duration) {
	if lock.sleepFunc != nil {
		lock.sleepFunc(d)
		return
	}

	time.Sleep(d)
}

// KeyHash returns the sha256 of key as a hex string.
func KeyHash(key string) string {
	sum := sha256.Sum256([]byte(key))
	return fmt.Sprintf("%x", sum)
}

// expires returns the current time + ttl in Epoch format as a string
func (lock *RequestLock) expires() string {
	d := time.Duration(lock.TTL) * time.Second
	t := lock.now().Add(d).Unix()
	return strconv.FormatInt(t, 10)
}

// current returns the current time in Epoch format as a string
func (lock *RequestLock) current() string {
	return strconv.FormatInt(lock.now().Unix(), 10)
}

// putItemInput constructs the input for the given id insertion into dynamodb.
// It applies a conditional expression that causes failures when the id has
// already been added but not yet expired.
func (lock *RequestLock) putItemInput(id string) *dynamodb.PutItemInput {
	condition := "attribute_not_exists(id) OR :cur > expire"

	return &dynamodb.PutItemInput{
		Item: map[string]*dynamodb.AttributeValue{
			"id": {
				S: aws.String(id),
			},
			"expire": {
				N: aws.String(lock.expires()),
			},
		},
		TableName:           aws.String(lock.Table),
		ConditionExpression: aws.String(condition),
		ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
			":cur": {
				N: aws.String(lock.current()),
			},
		},
	}
}

// AvailableById returns true if the given id is available for use (not locked)
// and it returns false if it is locked.
//
// Locked is defined as the record being in the configured dynamodb table and
// not expired.
func (lock *RequestLock) AvailableById(id string) (bool, error) {
	s, err := session.NewSession(&aws.Config{
		Region: aws.String(lock.Region),
	})

	if err != nil {
		return false, errors.Wrap(err, "failed getting session")
	}

	svc := lock.svc(s)
	input := lock.putItemInput(id)

	for attempts := 1; attempts <= maxAttempts; attempts++ {
		_, err = svc.PutItem(input)
		if err == nil || !strings.Contains(err.Error(), "connection reset by peer") {
			break
		}
		lock.sleep(time.Duration(lock.RetryWait) * time.Millisecond)
	}

	if err == nil {
		return true, nil
	}

	var aerr awserr.Error
	if errors.As(err, &aerr) && aerr.Code() == dynamodb.ErrCodeConditionalCheckFailedException {
		return false, nil
	}

	return false, errors.Wrapf(err, "failed put %v to %v", id, lock.Table)
}

// Available returns true if key has not been seen within the TTL. The key is
// locked by its hash.
func (lock *RequestLock) Available(key string) (bool, error) {
	if key == "" {
		return false, errors.New("lock key is empty")
	}

	return lock.AvailableById(KeyHash(key))
}

// ReleaseById removes the lock record for id so it is available again.
func (lock *RequestLock) ReleaseById(id string) error {
	s, err := session.NewSession(&aws.Config{
		Region: aws.String(lock.Region),
	})

	if err != nil {
		return errors.Wrap(err, "failed getting session")
	}

	_, err = lock.svc(s).DeleteItem(&dynamodb.DeleteItemInput{
		Key: map[string]*dynamodb.AttributeValue{
			"id": {
				S: aws.String(id),
			},
		},
		TableName: aws.String(lock.Table),
	})

	return errors.Wrapf(err, "failed delete %v from %v", id, lock.Table)
}

// Release frees a key previously claimed by Available.
func (lock *RequestLock) Release(key string) error {
	if key == "" {
		return errors.New("lock key is empty")
	}

	return lock.ReleaseById(KeyHash(key))
}
