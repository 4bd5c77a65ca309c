package queue

import (
	"strconv"

	"github.com/finch-technologies/go-sqs-listener/queue/types"
	"github.com/finch-technologies/go-sqs-listener/utils"
)

// AllAttributes requests every attribute, as with SQS.
const AllAttributes = "All"

func wants(names []string, name string) bool {
	return utils.Contains(names, AllAttributes) || utils.Contains(names, name)
}

// FilterAttributes keeps the message attributes requested by names.
func FilterAttributes(attributes map[string]types.AttributeValue, names []string) map[string]types.AttributeValue {
	if len(attributes) == 0 || len(names) == 0 {
		return nil
	}
	out := make(map[string]types.AttributeValue)
	for k, v := range attributes {
		if wants(names, k) {
			out[k] = v
		}
	}
	return out
}

// SystemAttributes builds the requested system attributes for backends that
// track them themselves.
func SystemAttributes(receiveCount int, sentAtMillis int64, groupId string, names []string) map[string]string {
	if len(names) == 0 {
		return nil
	}
	all := map[string]string{
		"ApproximateReceiveCount": strconv.Itoa(receiveCount),
		"SentTimestamp":           strconv.FormatInt(sentAtMillis, 10),
	}
	if groupId != "" {
		all["MessageGroupId"] = groupId
	}
	out := make(map[string]string)
	for k, v := range all {
		if wants(names, k) {
			out[k] = v
		}
	}
	return out
}
