package mongo

import (
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/sakif/billing-tracker/internal/model"
	"github.com/sakif/billing-tracker/internal/repository"
)

// countWhereStatus is {$sum: {$cond: [{$eq: ["$status", s]}, 1, 0]}}.
func countWhereStatus(s model.CustomerStatus) bson.D {
	return bson.D{{Key: "$sum", Value: bson.D{{Key: "$cond", Value: bson.A{
		bson.D{{Key: "$eq", Value: bson.A{"$status", string(s)}}}, 1, 0,
	}}}}}
}

// streetSummaryPipeline groups one owner's customers by street:
//
//	$match  {userId}
//	$group  {_id: "$streetName", totalCustomers, paidCount, unpaidCount, totalAmount}
//	$sort   {_id: 1}
//	$project _id → streetName
func streetSummaryPipeline(userID primitive.ObjectID) mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$match", Value: bson.D{{Key: "userId", Value: userID}}}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$streetName"},
			{Key: "totalCustomers", Value: bson.D{{Key: "$sum", Value: 1}}},
			{Key: "paidCount", Value: countWhereStatus(model.StatusPaid)},
			{Key: "unpaidCount", Value: countWhereStatus(model.StatusUnpaid)},
			{Key: "totalAmount", Value: bson.D{{Key: "$sum", Value: "$rechargeAmount"}}},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "_id", Value: 1}}}},
		{{Key: "$project", Value: bson.D{
			{Key: "_id", Value: 0},
			{Key: "streetName", Value: "$_id"},
			{Key: "totalCustomers", Value: 1},
			{Key: "paidCount", Value: 1},
			{Key: "unpaidCount", Value: 1},
			{Key: "totalAmount", Value: 1},
		}}},
	}
}

// totalsPipeline collapses all of an owner's customers into a single group.
func totalsPipeline(userID primitive.ObjectID) mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$match", Value: bson.D{{Key: "userId", Value: userID}}}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: nil},
			{Key: "totalCustomers", Value: bson.D{{Key: "$sum", Value: 1}}},
			{Key: "paidCount", Value: countWhereStatus(model.StatusPaid)},
			{Key: "unpaidCount", Value: countWhereStatus(model.StatusUnpaid)},
			{Key: "totalAmount", Value: bson.D{{Key: "$sum", Value: "$rechargeAmount"}}},
			{Key: "collectedAmount", Value: bson.D{{Key: "$sum", Value: bson.D{{Key: "$cond", Value: bson.A{
				bson.D{{Key: "$eq", Value: bson.A{"$status", string(model.StatusPaid)}}}, "$rechargeAmount", 0,
			}}}}}},
		}}},
	}
}

// markPaidUpdate is an update pipeline, so the appended history entry can
// read the document's own rechargeAmount. Status, date and history change in
// one atomic write.
func markPaidUpdate(at time.Time) mongo.Pipeline {
	entry := bson.D{
		{Key: "date", Value: at},
		{Key: "amount", Value: "$rechargeAmount"},
		{Key: "month", Value: at.Month().String()},
		{Key: "year", Value: at.Year()},
	}
	return mongo.Pipeline{
		{{Key: "$set", Value: bson.D{
			{Key: "status", Value: string(model.StatusPaid)},
			{Key: "lastPaymentDate", Value: at},
			{Key: "updatedAt", Value: at},
			{Key: "paymentHistory", Value: bson.D{{Key: "$concatArrays", Value: bson.A{
				bson.D{{Key: "$ifNull", Value: bson.A{"$paymentHistory", bson.A{}}}},
				bson.A{entry},
			}}}},
		}}},
	}
}

// customerFilter builds the find filter for ListCustomers.
func customerFilter(userID primitive.ObjectID, f repository.CustomerFilter) bson.D {
	filter := bson.D{{Key: "userId", Value: userID}}
	if f.StreetName != "" {
		filter = append(filter, bson.E{Key: "streetName", Value: f.StreetName})
	}
	if f.Status != "" {
		filter = append(filter, bson.E{Key: "status", Value: string(f.Status)})
	}
	return filter
}

// patchSet turns the non-nil fields of a patch into a $set document.
func patchSet(p repository.CustomerPatch, at time.Time) bson.D {
	set := bson.D{}
	if p.Name != nil {
		set = append(set, bson.E{Key: "name", Value: *p.Name})
	}
	if p.StreetName != nil {
		set = append(set, bson.E{Key: "streetName", Value: *p.StreetName})
	}
	if p.RechargeAmount != nil {
		set = append(set, bson.E{Key: "rechargeAmount", Value: *p.RechargeAmount})
	}
	if p.Status != nil {
		set = append(set, bson.E{Key: "status", Value: string(*p.Status)})
	}
	return append(set, bson.E{Key: "updatedAt", Value: at})
}

// orphanFilter matches customers that predate ownership.
func orphanFilter() bson.D {
	return bson.D{{Key: "$or", Value: bson.A{
		bson.D{{Key: "userId", Value: bson.D{{Key: "$exists", Value: false}}}},
		bson.D{{Key: "userId", Value: nil}},
	}}}
}
