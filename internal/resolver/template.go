package resolver

// builtinTemplate is the fallback application installed when no user
// input is provided. It subscribes to vehicle speed and logs every
// update, which exercises the whole pipeline end to end.
const builtinTemplate = `#include "sdk/VehicleApp.h"
#include "sdk/Logger.h"
#include "vehicle/Vehicle.hpp"

#include <memory>

class TemplateApp : public VehicleApp {
public:
    TemplateApp()
        : VehicleApp(IPubSubClient::createInstance("TemplateApp")) {}

    void onStart() override {
        logger().info("TemplateApp started");
        subscribeDataPoints(QueryBuilder::select(Vehicle.Speed).build())
            ->onItem([this](auto&& item) { onSpeedChanged(std::forward<decltype(item)>(item)); })
            ->onError([this](auto&& status) {
                logger().error("subscription error: %s", status.errorMessage().c_str());
            });
    }

private:
    void onSpeedChanged(const DataPointReply& reply) {
        auto speed = reply.get(Vehicle.Speed)->value();
        logger().info("speed update received: %f", speed);
    }

    Vehicle Vehicle;
};

int main(int argc, char** argv) {
    auto app = std::make_unique<TemplateApp>();
    app->run();
    return 0;
}
`
