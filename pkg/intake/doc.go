// Package intake implements the subscription intake: it validates a
// tokenized card plus the subscriber's email, name and userPhoneID, creates
// a processor customer and then a subscription, and records the result.
//
// # Workflow
//
//	Request ──validate──▶ CreateCustomer ──▶ PriceID set? ──▶ CreateSubscription ──▶ PutRecord ──▶ Outcome
//
// Validation failures return before any remote call. Each later step
// short-circuits on failure. There is no compensation and no idempotency:
// a failure after CreateCustomer leaves the customer orphaned (it is logged
// and counted), and resubmitting a request creates a second customer and a
// second subscription.
//
// # Entry Points
//
// Service.Subscribe is transport-independent. Handler serves it over HTTP
// and LambdaHandler behind API Gateway. Both produce the same bodies:
//
//	200 {"success":true,"customerId":"cus_…","subscriptionId":"sub_…"}
//	400 {"success":false,"message":"Token, email, nombre y uID son requeridos"}
//	400 {"success":false,"message":"Cuerpo de la solicitud inválido"}
//	500 {"success":false,"message":"Error interno al crear el cliente o la suscripción"}
//
// # Errors
//
// Every failure is an *Error carrying an ErrorKind. StatusCode and
// PublicMessage map the kind to the response; the wrapped cause (a
// *billing.Error, a store error, a recovered panic) is logged only.
package intake
